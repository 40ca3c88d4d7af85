package chunkstore_test

import (
	"context"
	"errors"
	"testing"

	"shuttle/internal/chunkstore"
	"shuttle/internal/testsupport"
)

func TestCreateSessionIsIdempotent(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if err := store.CreateSession(ctx, "sess-1", "owner-a"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	testsupport.PutChunk(t, store, "sess-1", 1, []byte("payload-one"))

	if err := store.CreateSession(ctx, "sess-1", "owner-a"); err != nil {
		t.Fatalf("second CreateSession: %v", err)
	}

	session, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session.ChunksTotal != 1 {
		t.Fatalf("expected chunk count preserved across duplicate create, got %d", session.ChunksTotal)
	}
	if session.OwnerID != "owner-a" {
		t.Fatalf("unexpected owner %q", session.OwnerID)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	_, err := store.GetSession(context.Background(), "missing")
	if !errors.Is(err, chunkstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChunksSurviveReopen(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewSession(t, store, "sess-1")
	testsupport.PutChunk(t, store, "sess-1", 1, []byte("first-chunk-bytes"))
	testsupport.PutChunk(t, store, "sess-1", 2, []byte("second-chunk-bytes"))

	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	chunk, err := reopened.Get(ctx, "sess-1", 2)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(chunk.Payload) != "second-chunk-bytes" {
		t.Fatalf("payload altered across reopen: %q", chunk.Payload)
	}
	if chunk.State != chunkstore.StatePending {
		t.Fatalf("expected pending after reopen, got %s", chunk.State)
	}
}

func TestSetSessionStateRefusesLeavingCompleted(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewSession(t, store, "sess-1")

	if err := store.SetSessionState(ctx, "sess-1", chunkstore.SessionCompleted); err != nil {
		t.Fatalf("SetSessionState completed: %v", err)
	}
	if err := store.SetSessionState(ctx, "sess-1", chunkstore.SessionRecording); err == nil {
		t.Fatal("expected error transitioning out of completed")
	}
}

func TestDeleteSessionRemovesChunks(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.NewSession(t, store, "sess-1")
	testsupport.PutChunk(t, store, "sess-1", 1, []byte("aaaa"))
	testsupport.PutChunk(t, store, "sess-1", 2, []byte("bbbb"))

	deleted, err := store.DeleteSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 chunks deleted, got %d", deleted)
	}
	if _, err := store.Get(ctx, "sess-1", 1); !errors.Is(err, chunkstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCheckHealthReportsHealthyDatabase(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	testsupport.NewSession(t, store, "sess-1")
	testsupport.PutChunk(t, store, "sess-1", 1, []byte("payload"))

	health := store.CheckHealth(context.Background())
	if health.Error != "" {
		t.Fatalf("unexpected health error: %s", health.Error)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("expected healthy database, got %+v", health)
	}
	if health.TotalChunks != 1 {
		t.Fatalf("expected 1 chunk, got %d", health.TotalChunks)
	}
}
