package uploader

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"shuttle/internal/chunkstore"
	"shuttle/internal/config"
	"shuttle/internal/logging"
	"shuttle/internal/presign"
	"shuttle/internal/services"
	"shuttle/internal/transport"
)

// Stats summarizes delivery progress, optionally scoped to one session.
type Stats struct {
	Pending    int
	Uploading  int
	Uploaded   int
	Failed     int
	TotalBytes int64
}

// Scheduler drives pending and retry-eligible chunks to the uploaded state
// with bounded concurrency and exponential backoff. It is the only writer of
// chunk delivery state after admission.
type Scheduler struct {
	store       *chunkstore.Store
	issuer      presign.Issuer
	transmitter transport.Transmitter
	logger      *slog.Logger
	events      *eventBus

	maxConcurrent  int
	maxRetries     int
	baseDelay      time.Duration
	maxDelay       time.Duration
	attemptTimeout time.Duration
	pollInterval   time.Duration

	slots chan struct{}
	wake  chan struct{}

	mu      sync.Mutex
	paused  bool
	offline bool
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a Scheduler. The issuer and transmitter are injected so tests
// can substitute fakes.
func New(cfg *config.Config, store *chunkstore.Store, issuer presign.Issuer, transmitter transport.Transmitter, logger *slog.Logger) *Scheduler {
	maxConcurrent := cfg.Uploader.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{
		store:          store,
		issuer:         issuer,
		transmitter:    transmitter,
		logger:         logging.NewComponentLogger(logger, "uploader"),
		events:         newEventBus(),
		maxConcurrent:  maxConcurrent,
		maxRetries:     cfg.Uploader.MaxRetries,
		baseDelay:      time.Duration(cfg.Uploader.BaseDelaySeconds) * time.Second,
		maxDelay:       time.Duration(cfg.Uploader.MaxDelaySeconds) * time.Second,
		attemptTimeout: time.Duration(cfg.Uploader.AttemptTimeoutSeconds) * time.Second,
		pollInterval:   time.Duration(cfg.Uploader.PollIntervalSeconds) * time.Second,
		slots:          make(chan struct{}, maxConcurrent),
		wake:           make(chan struct{}, 1),
	}
}

// Subscribe registers a handler for one of the scheduler event names.
func (s *Scheduler) Subscribe(name string, handler Handler) {
	s.events.subscribe(name, handler)
}

// Start begins background scheduling.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	go s.run(runCtx)
	return nil
}

// Stop halts scheduling and waits for in-flight uploads to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// Pause stops pulling new work. In-flight uploads complete naturally; none
// are cancelled mid-transfer.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.logger.Info("scheduler paused", logging.String(logging.FieldEventType, "scheduler-paused"))
}

// Resume restarts work and reschedules immediately.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.logger.Info("scheduler resumed", logging.String(logging.FieldEventType, "scheduler-resumed"))
	s.kick()
}

// SetOnline records network reachability. Going offline pauses implicitly;
// coming back online reschedules immediately.
func (s *Scheduler) SetOnline(online bool) {
	s.mu.Lock()
	changed := s.offline == online
	s.offline = !online
	s.mu.Unlock()
	if !changed {
		return
	}
	if online {
		s.logger.Info("network reachable, resuming uploads",
			logging.String(logging.FieldEventType, "network-online"))
		s.kick()
	} else {
		s.logger.Warn("network unreachable, holding uploads",
			logging.String(logging.FieldEventType, "network-offline"))
	}
}

// Enqueue nudges the scheduler after a chunk was admitted. The store is the
// source of truth, so the identity is only used for logging.
func (s *Scheduler) Enqueue(sessionID string, seq int64) {
	s.logger.Debug("chunk enqueued",
		logging.String(logging.FieldSession, sessionID),
		logging.Int64(logging.FieldSeq, seq))
	s.kick()
}

// GetStats reports chunk counts by state plus stored payload volume. An empty
// sessionID aggregates across sessions.
func (s *Scheduler) GetStats(ctx context.Context, sessionID string) (*Stats, error) {
	raw, err := s.store.Stats(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Pending:    raw.ByState[chunkstore.StatePending],
		Uploading:  raw.ByState[chunkstore.StateUploading],
		Uploaded:   raw.ByState[chunkstore.StateUploaded],
		Failed:     raw.ByState[chunkstore.StateFailed],
		TotalBytes: raw.TotalBytes,
	}, nil
}

func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) holding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused || s.offline
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		if !s.holding() {
			s.dispatch(ctx)
		}
		timer := time.NewTimer(s.nextWait(ctx))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
		}
	}
}

// nextWait returns how long the run loop should sleep: the poll interval, or
// sooner when a scheduled retry expires before that.
func (s *Scheduler) nextWait(ctx context.Context) time.Duration {
	wait := s.pollInterval
	if wait <= 0 {
		wait = 2 * time.Second
	}
	retryAt, err := s.store.NextRetryTime(ctx)
	if err != nil || retryAt == nil {
		return wait
	}
	until := time.Until(*retryAt)
	if until < time.Millisecond {
		until = time.Millisecond
	}
	if until < wait {
		return until
	}
	return wait
}

// dispatch fills free upload slots with eligible chunks. The claim happens on
// this goroutine before any I/O starts, so a chunk can never occupy two slots
// at once.
func (s *Scheduler) dispatch(ctx context.Context) {
	for {
		select {
		case s.slots <- struct{}{}:
		default:
			return
		}

		chunk, err := s.store.NextEligible(ctx, time.Now())
		if err != nil {
			<-s.slots
			s.logger.Error("failed to query eligible chunks",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check chunk database access"))
			return
		}
		if chunk == nil {
			<-s.slots
			return
		}

		if err := s.store.ClaimUploading(ctx, chunk.SessionID, chunk.Seq); err != nil {
			<-s.slots
			if errors.Is(err, chunkstore.ErrStaleState) {
				continue
			}
			s.logger.Error("failed to claim chunk",
				logging.Error(err),
				logging.String(logging.FieldSession, chunk.SessionID),
				logging.Int64(logging.FieldSeq, chunk.Seq))
			return
		}

		s.wg.Add(1)
		go func(chunk *chunkstore.Chunk) {
			defer s.wg.Done()
			defer func() { <-s.slots }()
			s.upload(ctx, chunk)
			s.kick()
		}(chunk)
	}
}

func (s *Scheduler) upload(ctx context.Context, meta *chunkstore.Chunk) {
	s.events.emit(Event{
		Name:      EventUploadStart,
		SessionID: meta.SessionID,
		Seq:       meta.Seq,
		SizeBytes: meta.SizeBytes,
	})
	s.logger.Info("upload started",
		logging.String(logging.FieldEventType, "upload-start"),
		logging.String(logging.FieldSession, meta.SessionID),
		logging.Int64(logging.FieldSeq, meta.Seq),
		logging.Int64("size_bytes", meta.SizeBytes),
		logging.Int("attempt", meta.AttemptCount+1))

	remoteKey, err := s.attempt(ctx, meta)
	if err != nil {
		s.recordFailure(ctx, meta, err)
		return
	}

	if err := s.store.MarkUploaded(ctx, meta.SessionID, meta.Seq, remoteKey); err != nil {
		s.logger.Error("failed to record uploaded state",
			logging.Error(err),
			logging.String(logging.FieldSession, meta.SessionID),
			logging.Int64(logging.FieldSeq, meta.Seq),
			logging.String(logging.FieldErrorHint, "chunk will be re-uploaded after restart"))
		return
	}

	s.events.emit(Event{
		Name:      EventUploadComplete,
		SessionID: meta.SessionID,
		Seq:       meta.Seq,
		SizeBytes: meta.SizeBytes,
		RemoteKey: remoteKey,
	})
	s.logger.Info("upload complete",
		logging.String(logging.FieldEventType, "upload-complete"),
		logging.String(logging.FieldSession, meta.SessionID),
		logging.Int64(logging.FieldSeq, meta.Seq),
		logging.String("remote_key", remoteKey))
}

// attempt runs one presign-then-transmit cycle under the per-attempt timeout.
// The payload is loaded here rather than carried by the dispatch loop so slot
// occupancy, not queue depth, bounds memory usage.
func (s *Scheduler) attempt(ctx context.Context, meta *chunkstore.Chunk) (string, error) {
	attemptCtx := ctx
	if s.attemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, s.attemptTimeout)
		defer cancel()
	}

	chunk, err := s.store.Get(attemptCtx, meta.SessionID, meta.Seq)
	if err != nil {
		return "", services.Wrap(services.ErrTransmit, "uploader", "load-payload", "read chunk payload", err)
	}

	target, err := s.issuer.RequestUploadTarget(attemptCtx, chunk.SessionID, chunk.Seq, chunk.ContentType)
	if err != nil {
		return "", err
	}

	s.events.emit(Event{
		Name:      EventUploadProgress,
		SessionID: chunk.SessionID,
		Seq:       chunk.Seq,
		SizeBytes: chunk.SizeBytes,
		RemoteKey: target.RemoteKey,
	})

	if err := s.transmitter.Transmit(attemptCtx, target.URL, chunk.Payload, chunk.ContentType); err != nil {
		return "", err
	}
	return target.RemoteKey, nil
}

func (s *Scheduler) recordFailure(ctx context.Context, meta *chunkstore.Chunk, cause error) {
	attempt := meta.AttemptCount + 1
	// Non-retryable causes go terminal immediately; burning the remaining
	// attempts on them cannot change the outcome.
	terminal := attempt >= s.maxRetries || !services.IsRetryable(cause)

	var nextRetryAt *time.Time
	if !terminal {
		retryAt := time.Now().Add(backoffDelay(attempt, s.baseDelay, s.maxDelay))
		nextRetryAt = &retryAt
	}

	if err := s.store.MarkFailed(ctx, meta.SessionID, meta.Seq, cause.Error(), nextRetryAt, terminal); err != nil {
		s.logger.Error("failed to record failed state",
			logging.Error(err),
			logging.String(logging.FieldSession, meta.SessionID),
			logging.Int64(logging.FieldSeq, meta.Seq))
		return
	}

	eventErr := cause
	if terminal {
		eventErr = services.Wrap(services.ErrRetriesExhausted, "uploader", "upload",
			"retries exhausted, manual recovery required", cause)
	}
	s.events.emit(Event{
		Name:        EventUploadFailed,
		SessionID:   meta.SessionID,
		Seq:         meta.Seq,
		SizeBytes:   meta.SizeBytes,
		Err:         eventErr,
		NextRetryAt: nextRetryAt,
		Terminal:    terminal,
	})

	if terminal {
		s.logger.Error("upload failed terminally",
			logging.Error(cause),
			logging.String(logging.FieldEventType, "upload-failed"),
			logging.String(logging.FieldSession, meta.SessionID),
			logging.Int64(logging.FieldSeq, meta.Seq),
			logging.Int("attempts", attempt),
			logging.String(logging.FieldErrorHint, "run the retry command to requeue"))
		return
	}
	s.logger.Warn("upload failed, retry scheduled",
		logging.Error(cause),
		logging.String(logging.FieldEventType, "upload-failed"),
		logging.String(logging.FieldSession, meta.SessionID),
		logging.Int64(logging.FieldSeq, meta.Seq),
		logging.Int("attempt", attempt),
		logging.Time("next_retry_at", *nextRetryAt))
}
