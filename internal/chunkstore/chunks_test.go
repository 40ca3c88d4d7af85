package chunkstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"shuttle/internal/chunkstore"
	"shuttle/internal/testsupport"
)

func TestPutRejectsDuplicateSequence(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewSession(t, store, "sess-1")

	if err := store.Put(ctx, "sess-1", 1, []byte("original"), "audio/webm", 5000); err != nil {
		t.Fatalf("Put: %v", err)
	}
	err := store.Put(ctx, "sess-1", 1, []byte("replacement"), "audio/webm", 5000)
	if !errors.Is(err, chunkstore.ErrDuplicateChunk) {
		t.Fatalf("expected ErrDuplicateChunk, got %v", err)
	}

	chunk, err := store.Get(ctx, "sess-1", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(chunk.Payload) != "original" {
		t.Fatalf("payload mutated by duplicate put: %q", chunk.Payload)
	}
}

func TestPutEnforcesQuota(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t, testsupport.WithMaxStoreMiB(1)))
	ctx := context.Background()
	testsupport.NewSession(t, store, "sess-1")

	big := make([]byte, 700*1024)
	if err := store.Put(ctx, "sess-1", 1, big, "audio/webm", 5000); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	err := store.Put(ctx, "sess-1", 2, big, "audio/webm", 5000)
	if !errors.Is(err, chunkstore.ErrStorageFull) {
		t.Fatalf("expected ErrStorageFull, got %v", err)
	}

	// Freeing delivered chunks reopens the quota.
	if err := store.ClaimUploading(ctx, "sess-1", 1); err != nil {
		t.Fatalf("ClaimUploading: %v", err)
	}
	if err := store.MarkUploaded(ctx, "sess-1", 1, "remote/key-1"); err != nil {
		t.Fatalf("MarkUploaded: %v", err)
	}
	if _, err := store.DeleteUploaded(ctx, ""); err != nil {
		t.Fatalf("DeleteUploaded: %v", err)
	}
	if err := store.Put(ctx, "sess-1", 2, big, "audio/webm", 5000); err != nil {
		t.Fatalf("Put after cleanup: %v", err)
	}
}

func TestClaimUploadingIsExclusive(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewSession(t, store, "sess-1")
	testsupport.PutChunk(t, store, "sess-1", 1, []byte("payload"))

	if err := store.ClaimUploading(ctx, "sess-1", 1); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	err := store.ClaimUploading(ctx, "sess-1", 1)
	if !errors.Is(err, chunkstore.ErrStaleState) {
		t.Fatalf("expected ErrStaleState on double claim, got %v", err)
	}
}

func TestMarkUploadedUpdatesSessionCounters(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewSession(t, store, "sess-1")
	testsupport.PutChunk(t, store, "sess-1", 1, []byte("payload"))

	if err := store.ClaimUploading(ctx, "sess-1", 1); err != nil {
		t.Fatalf("ClaimUploading: %v", err)
	}
	if err := store.MarkUploaded(ctx, "sess-1", 1, "recordings/sess-1/1"); err != nil {
		t.Fatalf("MarkUploaded: %v", err)
	}

	chunk, err := store.Get(ctx, "sess-1", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if chunk.State != chunkstore.StateUploaded {
		t.Fatalf("expected uploaded, got %s", chunk.State)
	}
	if chunk.RemoteKey != "recordings/sess-1/1" {
		t.Fatalf("unexpected remote key %q", chunk.RemoteKey)
	}

	session, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session.ChunksUploaded != 1 {
		t.Fatalf("expected uploaded counter 1, got %d", session.ChunksUploaded)
	}
}

func TestMarkFailedSchedulesRetry(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewSession(t, store, "sess-1")
	testsupport.PutChunk(t, store, "sess-1", 1, []byte("payload"))

	if err := store.ClaimUploading(ctx, "sess-1", 1); err != nil {
		t.Fatalf("ClaimUploading: %v", err)
	}
	retryAt := time.Now().Add(time.Hour)
	if err := store.MarkFailed(ctx, "sess-1", 1, "connection reset", &retryAt, false); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	chunk, err := store.Get(ctx, "sess-1", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if chunk.State != chunkstore.StateFailed || chunk.Terminal {
		t.Fatalf("expected non-terminal failed, got %s terminal=%v", chunk.State, chunk.Terminal)
	}
	if chunk.AttemptCount != 1 {
		t.Fatalf("expected attempt count 1, got %d", chunk.AttemptCount)
	}
	if chunk.LastError != "connection reset" {
		t.Fatalf("unexpected last error %q", chunk.LastError)
	}

	// Retry scheduled in the future keeps the chunk out of the eligible set.
	next, err := store.NextEligible(ctx, time.Now())
	if err != nil {
		t.Fatalf("NextEligible: %v", err)
	}
	if next != nil {
		t.Fatalf("expected no eligible chunk before retry time, got %s/%d", next.SessionID, next.Seq)
	}
	next, err = store.NextEligible(ctx, retryAt.Add(time.Second))
	if err != nil {
		t.Fatalf("NextEligible after retry time: %v", err)
	}
	if next == nil || next.Seq != 1 {
		t.Fatalf("expected chunk eligible after retry time, got %+v", next)
	}
}

func TestTerminalFailureLeavesAutomaticRetrySet(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewSession(t, store, "sess-1")
	testsupport.PutChunk(t, store, "sess-1", 1, []byte("payload"))

	if err := store.ClaimUploading(ctx, "sess-1", 1); err != nil {
		t.Fatalf("ClaimUploading: %v", err)
	}
	if err := store.MarkFailed(ctx, "sess-1", 1, "gone for good", nil, true); err != nil {
		t.Fatalf("MarkFailed terminal: %v", err)
	}

	next, err := store.NextEligible(ctx, time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("NextEligible: %v", err)
	}
	if next != nil {
		t.Fatalf("terminal chunk must not be eligible, got %s/%d", next.SessionID, next.Seq)
	}

	session, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session.ChunksFailed != 1 {
		t.Fatalf("expected failed counter 1, got %d", session.ChunksFailed)
	}

	requeued, err := store.RequeueTerminal(ctx, "sess-1")
	if err != nil {
		t.Fatalf("RequeueTerminal: %v", err)
	}
	if requeued != 1 {
		t.Fatalf("expected 1 requeued, got %d", requeued)
	}
	chunk, err := store.Get(ctx, "sess-1", 1)
	if err != nil {
		t.Fatalf("Get after requeue: %v", err)
	}
	if chunk.State != chunkstore.StatePending || chunk.Terminal || chunk.AttemptCount != 0 {
		t.Fatalf("requeue did not reset chunk: %+v", chunk)
	}
}

func TestNextEligibleOrdersBySequence(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewSession(t, store, "sess-1")
	testsupport.PutChunk(t, store, "sess-1", 3, []byte("third"))
	testsupport.PutChunk(t, store, "sess-1", 1, []byte("first"))
	testsupport.PutChunk(t, store, "sess-1", 2, []byte("second"))

	now := time.Now()
	var order []int64
	for {
		next, err := store.NextEligible(ctx, now)
		if err != nil {
			t.Fatalf("NextEligible: %v", err)
		}
		if next == nil {
			break
		}
		order = append(order, next.Seq)
		if err := store.ClaimUploading(ctx, next.SessionID, next.Seq); err != nil {
			t.Fatalf("ClaimUploading %d: %v", next.Seq, err)
		}
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected ascending sequence order, got %v", order)
	}
}

func TestResetInFlightReturnsUploadingToPending(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewSession(t, store, "sess-1")
	testsupport.PutChunk(t, store, "sess-1", 1, []byte("payload"))

	if err := store.ClaimUploading(ctx, "sess-1", 1); err != nil {
		t.Fatalf("ClaimUploading: %v", err)
	}
	reset, err := store.ResetInFlight(ctx)
	if err != nil {
		t.Fatalf("ResetInFlight: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 reset, got %d", reset)
	}
	chunk, err := store.Get(ctx, "sess-1", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if chunk.State != chunkstore.StatePending {
		t.Fatalf("expected pending, got %s", chunk.State)
	}
}

func TestListByStateOmitsPayload(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewSession(t, store, "sess-1")
	testsupport.PutChunk(t, store, "sess-1", 1, []byte("payload-bytes"))

	chunks, err := store.ListByState(ctx, "sess-1", chunkstore.StatePending)
	if err != nil {
		t.Fatalf("ListByState: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Payload != nil {
		t.Fatal("list query must not load payload bytes")
	}
	if chunks[0].SizeBytes != int64(len("payload-bytes")) {
		t.Fatalf("unexpected size %d", chunks[0].SizeBytes)
	}
}

func TestStatsAggregatesByState(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewSession(t, store, "sess-1")
	testsupport.PutChunk(t, store, "sess-1", 1, []byte("aaaa"))
	testsupport.PutChunk(t, store, "sess-1", 2, []byte("bbbb"))

	if err := store.ClaimUploading(ctx, "sess-1", 1); err != nil {
		t.Fatalf("ClaimUploading: %v", err)
	}
	if err := store.MarkUploaded(ctx, "sess-1", 1, "remote/1"); err != nil {
		t.Fatalf("MarkUploaded: %v", err)
	}

	stats, err := store.Stats(ctx, "")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalChunks != 2 || stats.TotalBytes != 8 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.ByState[chunkstore.StatePending] != 1 || stats.ByState[chunkstore.StateUploaded] != 1 {
		t.Fatalf("unexpected state counts: %+v", stats.ByState)
	}
}

func TestDeleteOlderThanRemovesExpiredChunks(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewSession(t, store, "sess-1")
	testsupport.PutChunk(t, store, "sess-1", 1, []byte("old-enough"))

	deleted, err := store.DeleteOlderThan(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}

	deleted, err = store.DeleteOlderThan(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("second DeleteOlderThan: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected nothing deleted, got %d", deleted)
	}
}
