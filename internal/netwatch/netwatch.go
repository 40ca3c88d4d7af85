package netwatch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"shuttle/internal/config"
	"shuttle/internal/logging"
)

// Sink receives reachability transitions.
type Sink interface {
	SetOnline(online bool)
}

// Watcher probes the presign endpoint periodically and reports reachability
// transitions to its sink. Any HTTP response counts as reachable; only a
// transport-level failure means the network path is down.
type Watcher struct {
	probeURL string
	interval time.Duration
	client   *http.Client
	sink     Sink
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	online  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a Watcher probing the configured presign base URL.
func New(cfg *config.Config, sink Sink, logger *slog.Logger) *Watcher {
	interval := time.Duration(cfg.Network.ProbeIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	timeout := time.Duration(cfg.Network.ProbeTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Watcher{
		probeURL: cfg.Presign.BaseURL,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		sink:     sink,
		logger:   logging.NewComponentLogger(logger, "netwatch"),
		online:   true,
	}
}

// Start begins probing.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("watcher already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	go w.run(runCtx)
	return nil
}

// Stop halts probing.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
}

// Online reports the last observed reachability.
func (w *Watcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.observe(w.Probe(ctx))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Probe performs a single reachability check.
func (w *Watcher) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, w.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

func (w *Watcher) observe(online bool) {
	w.mu.Lock()
	changed := w.online != online
	w.online = online
	w.mu.Unlock()

	if !changed {
		return
	}
	if online {
		w.logger.Info("endpoint reachable",
			logging.String(logging.FieldEventType, "network-online"))
	} else {
		w.logger.Warn("endpoint unreachable",
			logging.String(logging.FieldEventType, "network-offline"))
	}
	if w.sink != nil {
		w.sink.SetOnline(online)
	}
}
