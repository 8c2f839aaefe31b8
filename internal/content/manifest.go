package content

import (
	"encoding/json"
	"fmt"
	"strings"

	"marquee/internal/faults"
)

// ManifestEntry describes one content item as listed by the backend.
type ManifestEntry struct {
	ID       string `json:"id"`
	Version  int64  `json:"version"`
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
	Priority string `json:"priority"`
}

// ParseManifest decodes and validates a manifest document, preserving the
// server's listing order. Malformed input is a protocol fault; a valid
// manifest may be empty.
func ParseManifest(data []byte) ([]ManifestEntry, error) {
	var raw struct {
		Items []ManifestEntry `json:"items"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, faults.Wrap(faults.ErrProtocol, "manifest", "decode", "", err)
	}

	entries := make([]ManifestEntry, 0, len(raw.Items))
	seen := make(map[string]struct{}, len(raw.Items))
	for _, entry := range raw.Items {
		entry.ID = strings.TrimSpace(entry.ID)
		if entry.ID == "" {
			return nil, faults.Wrap(faults.ErrProtocol, "manifest", "validate", "entry without id", nil)
		}
		if entry.Version <= 0 {
			return nil, faults.Wrap(faults.ErrProtocol, "manifest", "validate",
				fmt.Sprintf("entry %q has non-positive version %d", entry.ID, entry.Version), nil)
		}
		if strings.TrimSpace(entry.Checksum) == "" {
			return nil, faults.Wrap(faults.ErrProtocol, "manifest", "validate",
				fmt.Sprintf("entry %q missing checksum", entry.ID), nil)
		}
		if _, dup := seen[entry.ID]; dup {
			return nil, faults.Wrap(faults.ErrProtocol, "manifest", "validate",
				fmt.Sprintf("duplicate entry %q", entry.ID), nil)
		}
		seen[entry.ID] = struct{}{}
		entries = append(entries, entry)
	}
	return entries, nil
}

// PriorityClass returns the entry's priority as a Class, defaulting to
// normal for unknown or absent values.
func (e ManifestEntry) PriorityClass() Class {
	if class, ok := ParseClass(e.Priority); ok {
		return class
	}
	return ClassNormal
}
