// Package connectivity tracks whether the content server is reachable.
// A periodic health probe drives the state machine; kernel netlink events
// for the net subsystem trigger an immediate re-probe so cable pulls and
// Wi-Fi drops are noticed faster than the probe interval.
package connectivity
