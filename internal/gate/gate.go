package gate

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"

	"shuttle/internal/config"
	"shuttle/internal/logging"
	"shuttle/internal/services"
)

// Gate decides whether a freshly produced audio segment may enter durable
// storage. The dominant real-world failure mode is a codec emitting a
// container header with zero audio frames when the capture source suspends
// mid-record, so the size threshold is the only hard check.
type Gate struct {
	minValidSize int
	logger       *slog.Logger

	mu       sync.Mutex
	rejected map[string]int
}

// Decision is the outcome of an admission check.
type Decision struct {
	Admitted bool
	Reason   string
}

// New constructs a Gate from configuration.
func New(cfg *config.Config, logger *slog.Logger) *Gate {
	return &Gate{
		minValidSize: cfg.Gate.MinValidSize,
		logger:       logging.NewComponentLogger(logger, "gate"),
		rejected:     make(map[string]int),
	}
}

// Admit validates a segment before storage. Rejected segments are logged,
// counted against their session, and discarded; they never reach the chunk
// store or the network. A segment whose leading bytes match no known
// container is still admitted once it clears the size threshold: capture
// wrappers vary too much to refuse audio on header bytes alone.
func (g *Gate) Admit(sessionID string, segment []byte, declaredContentType string) Decision {
	if len(segment) < g.minValidSize {
		reason := fmt.Sprintf("segment is %d bytes, below the %d byte minimum", len(segment), g.minValidSize)
		g.reject(sessionID, reason, len(segment), declaredContentType)
		return Decision{Reason: reason}
	}
	if !hasKnownSignature(segment) {
		g.logger.Debug("segment admitted with unrecognized container signature",
			logging.String(logging.FieldSession, sessionID),
			logging.Int("size_bytes", len(segment)),
			logging.String("content_type", declaredContentType))
	}
	return Decision{Admitted: true}
}

// Check returns a validation error instead of a Decision, for callers that
// propagate errors.
func (g *Gate) Check(sessionID string, segment []byte, declaredContentType string) error {
	decision := g.Admit(sessionID, segment, declaredContentType)
	if decision.Admitted {
		return nil
	}
	return services.Wrap(services.ErrValidation, "gate", "admit", decision.Reason, nil)
}

// Rejections reports how many segments the gate has refused for a session
// since construction.
func (g *Gate) Rejections(sessionID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rejected[sessionID]
}

func (g *Gate) reject(sessionID, reason string, size int, contentType string) {
	g.mu.Lock()
	g.rejected[sessionID]++
	count := g.rejected[sessionID]
	g.mu.Unlock()

	if g.logger == nil {
		return
	}
	g.logger.Warn("segment rejected",
		logging.String(logging.FieldEventType, "segment-rejected"),
		logging.String(logging.FieldSession, sessionID),
		logging.Int("size_bytes", size),
		logging.String("content_type", contentType),
		logging.Int("session_rejections", count),
		logging.String("reason", reason))
}

var containerSignatures = [][]byte{
	{0x1A, 0x45, 0xDF, 0xA3}, // EBML (WebM/Matroska)
	[]byte("OggS"),           // Ogg
	[]byte("RIFF"),           // WAV
	[]byte("fLaC"),           // FLAC
	[]byte("ID3"),            // MP3 with ID3 tag
}

// hasKnownSignature does a cheap container-header sniff for logging. MPEG
// frame sync (MP3 and ADTS AAC, with or without CRC) is 11 set bits, so that
// is checked by mask; MP4/M4A puts its magic at offset 4.
func hasKnownSignature(segment []byte) bool {
	for _, sig := range containerSignatures {
		if bytes.HasPrefix(segment, sig) {
			return true
		}
	}
	if len(segment) >= 2 && segment[0] == 0xFF && segment[1]&0xE0 == 0xE0 {
		return true
	}
	return len(segment) >= 12 && bytes.Equal(segment[4:8], []byte("ftyp"))
}
