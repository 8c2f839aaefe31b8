// Package listener maintains the websocket subscription to the content
// server's invalidation channel. Notices translate into queue work; the
// channel itself is only a hint, so a missed or malformed message costs
// nothing that the next manifest sync cannot repair.
package listener
