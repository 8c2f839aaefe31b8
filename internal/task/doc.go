// Package task defines the sync task model: the unit of work persisted in
// the local store and drained by the orchestrator.
package task
