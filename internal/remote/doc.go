// Package remote is the HTTP client for the content server: manifest
// fetches, payload downloads, and the connectivity probe. Every request
// carries the device identity header and a deadline.
package remote
