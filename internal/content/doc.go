// Package content defines the content item and manifest data model shared
// by the store, cache, and sync components.
package content
