// Package notify carries engine events to the outside world.
//
// The Hub is the change-notification stream consumed by the presentation
// layer: one event per committed, evicted, or dead-lettered content id.
// The Alerter pushes operator-facing alerts (dead letters, repeated
// integrity failures) to an ntfy topic when one is configured.
package notify
