package testsupport

import (
	"path/filepath"
	"testing"

	"shuttle/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.SpoolDir = filepath.Join(base, "spool")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Presign.BaseURL = "http://127.0.0.1:0"
	cfgVal.Presign.AuthToken = "test"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithPresignURL sets the upload-target service base URL on the test config.
func WithPresignURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Presign.BaseURL = url
	}
}

// WithMaxStoreMiB caps the chunk store quota on the test config.
func WithMaxStoreMiB(mib int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.MaxTotalMiB = mib
	}
}

// WithGateMinSize overrides the admission size threshold on the test config.
func WithGateMinSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Gate.MinValidSize = size
	}
}

// WithUploader mutates the uploader section on the test config.
func WithUploader(fn func(*config.Uploader)) ConfigOption {
	return func(b *configBuilder) {
		fn(&b.cfg.Uploader)
	}
}
