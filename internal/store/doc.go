// Package store is the durable local store for content items and sync
// tasks, backed by SQLite plus a payload blob directory.
//
// Payload updates are committed atomically: the new blob is written to a
// temp file, fsynced, renamed into place, and only then does the database
// row move to the new locator. The previous blob is garbage-collected after
// the commit, so a half-written payload is never referenced.
package store
