// Package orchestrator drains the sync queue with a bounded worker pool.
// It owns the manifest reconciliation and fetch/apply/purge protocols;
// every commit goes through cache admission and the durable store, and
// every outcome is reported back to the queue.
package orchestrator
