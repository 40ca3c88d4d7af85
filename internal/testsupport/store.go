package testsupport

import (
	"context"
	"testing"

	"shuttle/internal/chunkstore"
	"shuttle/internal/config"
)

// MustOpenStore opens a chunkstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *chunkstore.Store {
	t.Helper()

	store, err := chunkstore.Open(cfg)
	if err != nil {
		t.Fatalf("chunkstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewSession creates a session for tests using the provided store.
func NewSession(t testing.TB, store *chunkstore.Store, sessionID string) {
	t.Helper()

	if err := store.CreateSession(context.Background(), sessionID, "owner-test"); err != nil {
		t.Fatalf("store.CreateSession: %v", err)
	}
}

// PutChunk persists a chunk for tests and fails the test on error.
func PutChunk(t testing.TB, store *chunkstore.Store, sessionID string, seq int64, payload []byte) {
	t.Helper()

	if err := store.Put(context.Background(), sessionID, seq, payload, "audio/webm", 5000); err != nil {
		t.Fatalf("store.Put %s/%d: %v", sessionID, seq, err)
	}
}
