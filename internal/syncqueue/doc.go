// Package syncqueue is the persisted work queue between the invalidation
// sources and the sync workers. Every mutation is written through to the
// store before it is visible to a dequeue, so a crash never loses accepted
// work. Ordering is priority-banded FIFO with per-item backoff gating.
package syncqueue
