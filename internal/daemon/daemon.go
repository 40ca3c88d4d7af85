package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"shuttle/internal/chunkstore"
	"shuttle/internal/config"
	"shuttle/internal/logging"
	"shuttle/internal/netwatch"
	"shuttle/internal/spool"
	"shuttle/internal/uploader"
)

// Daemon coordinates the background services and enforces single-instance
// execution over the shared chunk database.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *chunkstore.Store
	scheduler *uploader.Scheduler
	ingester  *spool.Ingester
	watcher   *netwatch.Watcher

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a daemon with initialized dependencies. The ingester and
// watcher are optional.
func New(cfg *config.Config, store *chunkstore.Store, scheduler *uploader.Scheduler, ingester *spool.Ingester, watcher *netwatch.Watcher, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || scheduler == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, scheduler, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "shuttle.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		scheduler: scheduler,
		ingester:  ingester,
		watcher:   watcher,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, recovers interrupted work, and launches
// the background services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another shuttle instance is already running")
	}

	// Chunks left uploading belong to a process that died mid-transfer.
	reset, err := d.store.ResetInFlight(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recover interrupted uploads: %w", err)
	}
	if reset > 0 {
		d.logger.Info("recovered interrupted uploads",
			logging.String(logging.FieldEventType, "startup-recovery"),
			logging.Int64("chunks", reset))
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.scheduler.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}
	if d.ingester != nil {
		if err := d.ingester.Start(runCtx); err != nil {
			d.scheduler.Stop()
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start spool ingester: %w", err)
		}
	}
	if d.watcher != nil {
		if err := d.watcher.Start(runCtx); err != nil {
			if d.ingester != nil {
				d.ingester.Stop()
			}
			d.scheduler.Stop()
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start network watcher: %w", err)
		}
	}

	d.cancel = cancel
	d.done = make(chan struct{})
	go d.retentionLoop(runCtx)

	d.running.Store(true)
	d.logger.Info("shuttle daemon started",
		logging.String("lock", d.lockPath),
		logging.String("db", d.store.Path()))
	return nil
}

// Stop halts background services and releases the instance lock. In-flight
// uploads are abandoned and recovered on the next start.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.ingester != nil {
		d.ingester.Stop()
	}
	d.scheduler.Stop()
	if d.done != nil {
		<-d.done
		d.done = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release instance lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("shuttle daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// retentionLoop enforces the age-based retention policy once a day.
func (d *Daemon) retentionLoop(ctx context.Context) {
	defer close(d.done)

	days := d.cfg.Store.RetentionDays
	if days <= 0 {
		return
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		cutoff := time.Now().AddDate(0, 0, -days)
		deleted, err := d.store.DeleteOlderThan(ctx, cutoff)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn("retention sweep failed", logging.Error(err))
		} else if deleted > 0 {
			d.logger.Info("retention sweep removed expired chunks",
				logging.String(logging.FieldEventType, "retention-sweep"),
				logging.Int64("chunks", deleted))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
