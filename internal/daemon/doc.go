// Package daemon coordinates the long-running Marquee process.
//
// It wires the content store, cache manager, sync queue, orchestrator,
// invalidation listener, and connectivity monitor into a single lifecycle
// with flock-based locking to prevent multiple instances, and exposes the
// local HTTP API the CLI and presentation layer talk to.
//
// Keep orchestration logic out of here: the daemon focuses on startup,
// shutdown, and high level coordination.
package daemon
