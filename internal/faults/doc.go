// Package faults defines the error taxonomy shared by the sync engine.
//
// Errors are tagged with sentinel markers so callers can classify failures
// without inspecting messages: storage and network faults enter the retry
// path, integrity faults force a fresh manifest fetch, capacity faults are
// surfaced synchronously, and protocol faults trigger a reconnect.
package faults
