// Package cache enforces the disk budget over the content store. Admission
// makes room before a payload is written, the sweeper reclaims expired
// items, and pinned items are exempt from eviction entirely.
package cache
