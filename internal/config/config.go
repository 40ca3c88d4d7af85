package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	SpoolDir string `toml:"spool_dir"`
	LogDir   string `toml:"log_dir"`
}

// Gate contains admission thresholds for captured segments.
type Gate struct {
	// MinValidSize is the byte threshold below which a segment is treated as a
	// header-only stub and rejected. Tuned, not proven optimal; keep configurable.
	MinValidSize int `toml:"min_valid_size"`
}

// Store contains chunk store quota and retention settings.
type Store struct {
	MaxTotalMiB   int `toml:"max_total_mib"`
	RetentionDays int `toml:"retention_days"`
}

// Uploader contains scheduler concurrency and retry policy.
type Uploader struct {
	MaxConcurrent         int `toml:"max_concurrent"`
	MaxRetries            int `toml:"max_retries"`
	BaseDelaySeconds      int `toml:"base_delay_seconds"`
	MaxDelaySeconds       int `toml:"max_delay_seconds"`
	AttemptTimeoutSeconds int `toml:"attempt_timeout_seconds"`
	PollIntervalSeconds   int `toml:"poll_interval_seconds"`
}

// Presign contains connection settings for the upload-target issuing service.
type Presign struct {
	BaseURL               string `toml:"base_url"`
	AuthToken             string `toml:"auth_token"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Spool contains settings for the segment spool directory ingester.
type Spool struct {
	Enabled             bool   `toml:"enabled"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	DefaultContentType  string `toml:"default_content_type"`
}

// Network contains reachability probe settings driving pause/resume.
type Network struct {
	ProbeIntervalSeconds int `toml:"probe_interval_seconds"`
	ProbeTimeoutSeconds  int `toml:"probe_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for shuttle.
//
// Configuration sections by subsystem:
//   - Paths: data, spool, and log directories
//   - Gate: segment admission thresholds
//   - Store: chunk store quota and retention
//   - Uploader: scheduler concurrency, retry, and backoff policy
//   - Presign: upload-target service connection
//   - Spool: spool directory ingestion
//   - Network: reachability probing for implicit pause/resume
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Gate     Gate     `toml:"gate"`
	Store    Store    `toml:"store"`
	Uploader Uploader `toml:"uploader"`
	Presign  Presign  `toml:"presign"`
	Spool    Spool    `toml:"spool"`
	Network  Network  `toml:"network"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/shuttle/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized. The boolean reports whether a
// config file was found on disk.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("shuttle.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	for _, field := range []*string{&c.Paths.DataDir, &c.Paths.SpoolDir, &c.Paths.LogDir} {
		expanded, err := expandPath(strings.TrimSpace(*field))
		if err != nil {
			return err
		}
		*field = expanded
	}
	c.Presign.BaseURL = strings.TrimRight(strings.TrimSpace(c.Presign.BaseURL), "/")
	c.Presign.AuthToken = strings.TrimSpace(c.Presign.AuthToken)
	c.Spool.DefaultContentType = strings.TrimSpace(c.Spool.DefaultContentType)
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.Spool.Enabled {
		dirs = append(dirs, c.Paths.SpoolDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// MaxStoreBytes returns the store quota in bytes, or 0 when unlimited.
func (c *Config) MaxStoreBytes() int64 {
	if c.Store.MaxTotalMiB <= 0 {
		return 0
	}
	return int64(c.Store.MaxTotalMiB) * 1024 * 1024
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
