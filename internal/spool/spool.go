package spool

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"shuttle/internal/chunkstore"
	"shuttle/internal/config"
	"shuttle/internal/gate"
	"shuttle/internal/logging"
)

// Notifier is the scheduler surface the ingester needs.
type Notifier interface {
	Enqueue(sessionID string, seq int64)
}

// Ingester moves captured segments from the spool directory into the chunk
// store. The capture process drops one file per segment at
// <spool>/<session>/<seq>.<ext>; an accepted segment is persisted then
// removed from the spool, a rejected one is removed outright.
type Ingester struct {
	dir          string
	pollInterval time.Duration
	contentTypes map[string]string
	defaultType  string
	ownerID      string

	gate     *gate.Gate
	store    *chunkstore.Store
	notifier Notifier
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs an Ingester.
func New(cfg *config.Config, g *gate.Gate, store *chunkstore.Store, notifier Notifier, logger *slog.Logger) *Ingester {
	interval := time.Duration(cfg.Spool.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	return &Ingester{
		dir:          cfg.Paths.SpoolDir,
		pollInterval: interval,
		contentTypes: map[string]string{
			".webm": "audio/webm",
			".ogg":  "audio/ogg",
			".wav":  "audio/wav",
			".flac": "audio/flac",
			".mp3":  "audio/mpeg",
			".m4a":  "audio/mp4",
		},
		defaultType: cfg.Spool.DefaultContentType,
		ownerID:     currentOwner(),
		gate:        g,
		store:       store,
		notifier:    notifier,
		logger:      logging.NewComponentLogger(logger, "spool"),
	}
}

// Start begins polling the spool directory.
func (i *Ingester) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running {
		return errors.New("ingester already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.running = true
	i.wg.Add(1)
	go i.run(runCtx)
	return nil
}

// Stop halts polling and waits for the current sweep to finish.
func (i *Ingester) Stop() {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return
	}
	cancel := i.cancel
	i.running = false
	i.cancel = nil
	i.mu.Unlock()

	cancel()
	i.wg.Wait()
}

func (i *Ingester) run(ctx context.Context) {
	defer i.wg.Done()

	ticker := time.NewTicker(i.pollInterval)
	defer ticker.Stop()

	for {
		if err := i.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
			i.logger.Error("spool sweep failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check spool directory permissions"))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep ingests every well-formed segment file currently in the spool. Files
// that fail admission are discarded; a full chunk store leaves files in place
// for the next sweep.
func (i *Ingester) Sweep(ctx context.Context) error {
	segments, err := i.scan()
	if err != nil {
		return err
	}

	for _, seg := range segments {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := i.ingest(ctx, seg); err != nil {
			if errors.Is(err, chunkstore.ErrStorageFull) {
				i.logger.Error("chunk store is full, segments held in spool",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "run the cleanup command to free space"))
				return nil
			}
			i.logger.Error("segment ingest failed",
				logging.Error(err),
				logging.String("file", seg.path))
		}
	}
	return nil
}

type segmentFile struct {
	path      string
	sessionID string
	seq       int64
	ext       string
}

// scan lists spool files ordered by session then sequence so admission
// matches capture order.
func (i *Ingester) scan() ([]segmentFile, error) {
	entries, err := os.ReadDir(i.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var segments []segmentFile
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sessionID := entry.Name()
		sessionDir := filepath.Join(i.dir, sessionID)
		files, err := os.ReadDir(sessionDir)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			if file.IsDir() {
				continue
			}
			name := file.Name()
			// Capture writes to a dotfile then renames, so skip partials.
			if strings.HasPrefix(name, ".") {
				continue
			}
			ext := filepath.Ext(name)
			seq, err := strconv.ParseInt(strings.TrimSuffix(name, ext), 10, 64)
			if err != nil || seq < 1 {
				continue
			}
			segments = append(segments, segmentFile{
				path:      filepath.Join(sessionDir, name),
				sessionID: sessionID,
				seq:       seq,
				ext:       strings.ToLower(ext),
			})
		}
	}

	sort.Slice(segments, func(a, b int) bool {
		if segments[a].sessionID != segments[b].sessionID {
			return segments[a].sessionID < segments[b].sessionID
		}
		return segments[a].seq < segments[b].seq
	})
	return segments, nil
}

func (i *Ingester) ingest(ctx context.Context, seg segmentFile) error {
	payload, err := os.ReadFile(seg.path)
	if err != nil {
		return err
	}

	contentType := i.contentTypes[seg.ext]
	if contentType == "" {
		contentType = i.defaultType
	}

	if decision := i.gate.Admit(seg.sessionID, payload, contentType); !decision.Admitted {
		// Deliberate data loss: a segment that fails admission would only
		// poison downstream processing.
		return os.Remove(seg.path)
	}

	if err := i.store.CreateSession(ctx, seg.sessionID, i.ownerID); err != nil {
		return err
	}
	if err := i.store.Put(ctx, seg.sessionID, seg.seq, payload, contentType, 0); err != nil {
		if errors.Is(err, chunkstore.ErrDuplicateChunk) {
			// Already persisted on a previous sweep that died before the
			// spool file was removed.
			return os.Remove(seg.path)
		}
		return err
	}
	if err := os.Remove(seg.path); err != nil {
		return err
	}

	i.logger.Info("segment ingested",
		logging.String(logging.FieldEventType, "segment-ingested"),
		logging.String(logging.FieldSession, seg.sessionID),
		logging.Int64(logging.FieldSeq, seg.seq),
		logging.Int("size_bytes", len(payload)))

	if i.notifier != nil {
		i.notifier.Enqueue(seg.sessionID, seg.seq)
	}
	return nil
}

func currentOwner() string {
	if owner := os.Getenv("SHUTTLE_OWNER"); owner != "" {
		return owner
	}
	if owner := os.Getenv("USER"); owner != "" {
		return owner
	}
	return "unknown"
}
