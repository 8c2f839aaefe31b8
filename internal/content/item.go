package content

import (
	"strings"
	"time"
)

// Class ranks content for queue ordering and cache eviction.
type Class string

const (
	ClassCritical   Class = "critical"
	ClassNormal     Class = "normal"
	ClassBackground Class = "background"
)

var classWeights = map[Class]int{
	ClassCritical:   3,
	ClassNormal:     2,
	ClassBackground: 1,
}

// Weight returns the ordering weight of a class; higher runs first.
// Unknown classes rank below background so malformed input never jumps
// the queue.
func (c Class) Weight() int {
	return classWeights[c]
}

// ParseClass converts a string into a known Class.
func ParseClass(value string) (Class, bool) {
	normalized := Class(strings.ToLower(strings.TrimSpace(value)))
	_, ok := classWeights[normalized]
	return normalized, ok
}

// Item is the authoritative local record of one piece of remotely-authored
// content. For a given ID at most one Item exists in the store at a time.
//
// PayloadPath is an opaque locator into the payload directory. It is never
// mutated in place: an update writes a new payload file and the previous
// one is removed only after the replacement row is durably committed.
type Item struct {
	ID           string
	Version      int64
	Checksum     string
	PayloadPath  string
	Size         int64
	Priority     Class
	TTLSeconds   int64
	LastVerified time.Time

	// Pinned items are exempt from cache eviction until unpinned.
	Pinned      bool
	LastAccess  time.Time
	AccessCount int64

	// LocalEdit marks an optimistic local change not yet acknowledged by
	// the server; BaseVersion is the version the edit was based on.
	LocalEdit   bool
	BaseVersion int64
}

// Expired reports whether the item's TTL has elapsed relative to now.
// Items without a TTL never expire.
func (i Item) Expired(now time.Time) bool {
	if i.TTLSeconds <= 0 {
		return false
	}
	return now.After(i.LastVerified.Add(time.Duration(i.TTLSeconds) * time.Second))
}

// ExpiresAt returns the instant the item's TTL elapses, or the zero time
// when the item has no TTL.
func (i Item) ExpiresAt() time.Time {
	if i.TTLSeconds <= 0 {
		return time.Time{}
	}
	return i.LastVerified.Add(time.Duration(i.TTLSeconds) * time.Second)
}
