package listener

import (
	"encoding/json"
	"strings"

	"marquee/internal/faults"
)

const (
	noticeUpdated = "updated"
	noticeRemoved = "removed"
)

// Notice is one invalidation message from the server.
type Notice struct {
	ContentID string `json:"content_id"`
	Version   int64  `json:"version"`
	Priority  string `json:"priority,omitempty"`
	Action    string `json:"action,omitempty"`
}

// parseNotice decodes and validates a channel message.
func parseNotice(data []byte) (Notice, error) {
	var n Notice
	if err := json.Unmarshal(data, &n); err != nil {
		return Notice{}, faults.Wrap(faults.ErrProtocol, "listener", "parse notice", "malformed message", err)
	}
	n.ContentID = strings.TrimSpace(n.ContentID)
	n.Action = strings.ToLower(strings.TrimSpace(n.Action))
	if n.Action == "" {
		n.Action = noticeUpdated
	}
	if n.ContentID == "" {
		return Notice{}, faults.Wrap(faults.ErrProtocol, "listener", "parse notice", "missing content id", nil)
	}
	if n.Action == noticeUpdated && n.Version <= 0 {
		return Notice{}, faults.Wrap(faults.ErrProtocol, "listener", "parse notice", "missing version", nil)
	}
	return n, nil
}
