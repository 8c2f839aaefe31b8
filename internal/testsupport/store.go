package testsupport

import (
	"context"
	"testing"
	"time"

	"marquee/internal/config"
	"marquee/internal/content"
	"marquee/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// PutItem commits a content item with the given payload for tests. The
// checksum and size are derived from the payload.
func PutItem(t testing.TB, st *store.Store, id string, version int64, payload []byte) *content.Item {
	t.Helper()

	item := &content.Item{
		ID:           id,
		Version:      version,
		Checksum:     content.ChecksumBytes(payload),
		Priority:     content.ClassNormal,
		LastVerified: time.Now().UTC(),
	}
	if err := st.PutItem(context.Background(), item, payload); err != nil {
		t.Fatalf("store.PutItem(%s): %v", id, err)
	}
	return item
}
