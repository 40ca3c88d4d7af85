package gate_test

import (
	"context"
	"errors"
	"testing"

	"shuttle/internal/gate"
	"shuttle/internal/logging"
	"shuttle/internal/services"
	"shuttle/internal/testsupport"
)

func TestAdmitRejectsUndersizedSegments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	g := gate.New(cfg, logging.NewNop())

	cases := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"tiny", 4},
		{"just under threshold", cfg.Gate.MinValidSize - 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision := g.Admit("sess-1", testsupport.SegmentPayload(tc.size), "audio/webm")
			if decision.Admitted {
				t.Fatalf("expected rejection for %d bytes", tc.size)
			}
			if decision.Reason == "" {
				t.Fatal("rejection must carry a reason")
			}
		})
	}
}

func TestAdmitAcceptsValidSegment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	g := gate.New(cfg, logging.NewNop())

	decision := g.Admit("sess-1", testsupport.SegmentPayload(cfg.Gate.MinValidSize), "audio/webm")
	if !decision.Admitted {
		t.Fatalf("expected admission, got rejection: %s", decision.Reason)
	}
}

// Size is the only hard gate: raw frames and exotic wrappers carry headers
// the signature list cannot enumerate, so an unrecognized header must not
// cost the user their audio.
func TestAdmitAllowsUnknownSignature(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	g := gate.New(cfg, logging.NewNop())

	headers := map[string][]byte{
		"mp3 frame with crc":   {0xFF, 0xFA},
		"adts aac with crc":    {0xFF, 0xF0},
		"unlisted magic":       {0x42, 0x42},
		"zeroed leading bytes": nil,
	}
	for name, header := range headers {
		t.Run(name, func(t *testing.T) {
			payload := make([]byte, cfg.Gate.MinValidSize+500)
			copy(payload, header)
			decision := g.Admit("sess-1", payload, "audio/mpeg")
			if !decision.Admitted {
				t.Fatalf("expected admission, got rejection: %s", decision.Reason)
			}
		})
	}
}

func TestRejectionsCountedPerSession(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	g := gate.New(cfg, logging.NewNop())

	stub := testsupport.SegmentPayload(4)
	g.Admit("sess-1", stub, "audio/webm")
	g.Admit("sess-1", stub, "audio/webm")
	g.Admit("sess-2", stub, "audio/webm")
	g.Admit("sess-2", testsupport.SegmentPayload(cfg.Gate.MinValidSize), "audio/webm")

	if got := g.Rejections("sess-1"); got != 2 {
		t.Fatalf("expected 2 rejections for sess-1, got %d", got)
	}
	if got := g.Rejections("sess-2"); got != 1 {
		t.Fatalf("expected 1 rejection for sess-2, got %d", got)
	}
	if got := g.Rejections("sess-3"); got != 0 {
		t.Fatalf("expected 0 rejections for sess-3, got %d", got)
	}
}

func TestAdmitRecognizesCommonContainers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	g := gate.New(cfg, logging.NewNop())

	headers := map[string][]byte{
		"webm": {0x1A, 0x45, 0xDF, 0xA3},
		"ogg":  []byte("OggS"),
		"wav":  []byte("RIFF"),
		"flac": []byte("fLaC"),
		"mp3":  []byte("ID3"),
		"m4a":  {0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p'},
	}
	for name, header := range headers {
		t.Run(name, func(t *testing.T) {
			payload := make([]byte, cfg.Gate.MinValidSize)
			copy(payload, header)
			if decision := g.Admit("sess-1", payload, "audio/"+name); !decision.Admitted {
				t.Fatalf("expected admission: %s", decision.Reason)
			}
		})
	}
}

func TestCheckWrapsValidationError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	g := gate.New(cfg, logging.NewNop())

	err := g.Check("sess-1", []byte{0x1A}, "audio/webm")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if services.IsRetryable(err) {
		t.Fatal("validation failures must not be retryable")
	}
}

func TestRejectedSegmentNeverReachesStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	g := gate.New(cfg, logging.NewNop())
	ctx := context.Background()

	testsupport.NewSession(t, store, "sess-1")

	segment := testsupport.SegmentPayload(4)
	if decision := g.Admit("sess-1", segment, "audio/webm"); decision.Admitted {
		t.Fatal("expected rejection")
	}
	if got := g.Rejections("sess-1"); got != 1 {
		t.Fatalf("expected 1 rejection recorded, got %d", got)
	}

	stats, err := store.Stats(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalChunks != 0 {
		t.Fatalf("expected empty store after rejection, got %d chunks", stats.TotalChunks)
	}
}
