package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"marquee/internal/content"
	"marquee/internal/faults"
)

// writePayload commits a payload blob under a version-qualified name and
// returns its path. Write, fsync, rename: a crash mid-write leaves only an
// unreferenced temp file.
func (s *Store) writePayload(item *content.Item, payload []byte) (string, error) {
	if s.payloadDir == "" {
		return "", faults.Wrap(faults.ErrStorage, "store", "write payload", "payload directory not configured", nil)
	}
	if err := os.MkdirAll(s.payloadDir, 0o755); err != nil {
		return "", faults.Wrap(faults.ErrStorage, "store", "write payload", "ensure payload directory", err)
	}

	digest := item.Checksum
	if len(digest) > 12 {
		digest = digest[:12]
	}
	name := fmt.Sprintf("%s-v%d-%s.bin", sanitizeID(item.ID), item.Version, digest)
	finalPath := filepath.Join(s.payloadDir, name)

	tmp, err := os.CreateTemp(s.payloadDir, name+".tmp-*")
	if err != nil {
		return "", faults.Wrap(faults.ErrStorage, "store", "write payload", "create temp file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", faults.Wrap(faults.ErrStorage, "store", "write payload", "write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", faults.Wrap(faults.ErrStorage, "store", "write payload", "sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", faults.Wrap(faults.ErrStorage, "store", "write payload", "close temp file", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", faults.Wrap(faults.ErrStorage, "store", "write payload", "rename temp file", err)
	}
	return finalPath, nil
}

// ReadPayload loads the committed payload blob for an item.
func (s *Store) ReadPayload(item *content.Item) ([]byte, error) {
	if item == nil || item.PayloadPath == "" {
		return nil, faults.Wrap(faults.ErrNotFound, "store", "read payload", "item has no payload", nil)
	}
	data, err := os.ReadFile(item.PayloadPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, faults.Wrap(faults.ErrNotFound, "store", "read payload", item.ID, err)
		}
		return nil, faults.Wrap(faults.ErrStorage, "store", "read payload", item.ID, err)
	}
	return data, nil
}

// SweepPayloads removes blob files no longer referenced by any item row.
// It returns the number of files removed.
func (s *Store) SweepPayloads(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload_path FROM content_items`)
	if err != nil {
		return 0, faults.Wrap(faults.ErrStorage, "store", "sweep payloads", "list referenced blobs", err)
	}
	referenced := make(map[string]struct{})
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return 0, faults.Wrap(faults.ErrStorage, "store", "sweep payloads", "scan", err)
		}
		referenced[path] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, faults.Wrap(faults.ErrStorage, "store", "sweep payloads", "iterate", err)
	}

	entries, err := os.ReadDir(s.payloadDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, faults.Wrap(faults.ErrStorage, "store", "sweep payloads", "read payload directory", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(s.payloadDir, entry.Name())
		if _, ok := referenced[path]; ok {
			continue
		}
		if err := os.Remove(path); err == nil {
			removed++
		}
	}
	return removed, nil
}

func sanitizeID(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
