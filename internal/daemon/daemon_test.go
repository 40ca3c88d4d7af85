package daemon_test

import (
	"context"
	"testing"

	"shuttle/internal/chunkstore"
	"shuttle/internal/daemon"
	"shuttle/internal/logging"
	"shuttle/internal/presign"
	"shuttle/internal/testsupport"
	"shuttle/internal/transport"
	"shuttle/internal/uploader"
)

func TestStartRecoversInterruptedUploads(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewSession(t, store, "sess-1")
	testsupport.PutChunk(t, store, "sess-1", 1, testsupport.SegmentPayload(2000))
	if err := store.ClaimUploading(ctx, "sess-1", 1); err != nil {
		t.Fatalf("ClaimUploading: %v", err)
	}

	sched := uploader.New(cfg, store, presign.NewClient(cfg), transport.NewHTTPTransmitter(), logging.NewNop())
	d, err := daemon.New(cfg, store, sched, nil, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	// Hold the scheduler so recovery state is observable.
	sched.Pause()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	chunk, err := store.Get(ctx, "sess-1", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if chunk.State != chunkstore.StatePending {
		t.Fatalf("expected interrupted chunk reset to pending, got %s", chunk.State)
	}
}

func TestSecondInstanceIsRefused(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	newScheduler := func() *uploader.Scheduler {
		return uploader.New(cfg, store, presign.NewClient(cfg), transport.NewHTTPTransmitter(), logging.NewNop())
	}

	first, err := daemon.New(cfg, store, newScheduler(), nil, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer first.Stop()

	second, err := daemon.New(cfg, store, newScheduler(), nil, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New second: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be refused")
	}
}

func TestStopReleasesLockForRestart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	sched := uploader.New(cfg, store, presign.NewClient(cfg), transport.NewHTTPTransmitter(), logging.NewNop())
	d, err := daemon.New(cfg, store, sched, nil, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	d.Stop()
	if d.Running() {
		t.Fatal("daemon should report stopped")
	}

	sched2 := uploader.New(cfg, store, presign.NewClient(cfg), transport.NewHTTPTransmitter(), logging.NewNop())
	d2, err := daemon.New(cfg, store, sched2, nil, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New restart: %v", err)
	}
	if err := d2.Start(ctx); err != nil {
		t.Fatalf("restart Start: %v", err)
	}
	d2.Stop()
}
