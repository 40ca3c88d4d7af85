package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateGate(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateUploader(); err != nil {
		return err
	}
	if err := c.validatePresign(); err != nil {
		return err
	}
	if err := c.validateSpool(); err != nil {
		return err
	}
	if err := c.validateNetwork(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Spool.Enabled && strings.TrimSpace(c.Paths.SpoolDir) == "" {
		return errors.New("paths.spool_dir must be set when spool.enabled is true")
	}
	return nil
}

func (c *Config) validateGate() error {
	if c.Gate.MinValidSize < 0 {
		return errors.New("gate.min_valid_size must be >= 0")
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.MaxTotalMiB < 0 {
		return errors.New("store.max_total_mib must be >= 0 (0 disables the quota)")
	}
	if c.Store.RetentionDays < 0 {
		return errors.New("store.retention_days must be >= 0 (0 disables retention cleanup)")
	}
	return nil
}

func (c *Config) validateUploader() error {
	if err := ensurePositiveMap(map[string]int{
		"uploader.max_concurrent":          c.Uploader.MaxConcurrent,
		"uploader.base_delay_seconds":      c.Uploader.BaseDelaySeconds,
		"uploader.max_delay_seconds":       c.Uploader.MaxDelaySeconds,
		"uploader.attempt_timeout_seconds": c.Uploader.AttemptTimeoutSeconds,
		"uploader.poll_interval_seconds":   c.Uploader.PollIntervalSeconds,
	}); err != nil {
		return err
	}
	if c.Uploader.MaxRetries < 1 {
		return errors.New("uploader.max_retries must be >= 1")
	}
	if c.Uploader.MaxDelaySeconds < c.Uploader.BaseDelaySeconds {
		return errors.New("uploader.max_delay_seconds must be >= uploader.base_delay_seconds")
	}
	return nil
}

func (c *Config) validatePresign() error {
	base := strings.TrimSpace(c.Presign.BaseURL)
	if base == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/shuttle/config.toml"
		}
		return fmt.Errorf("presign.base_url is required; edit %s (create with 'shuttle config init')", defaultPath)
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("presign.base_url %q is not a valid absolute URL", base)
	}
	if c.Presign.RequestTimeoutSeconds <= 0 {
		return errors.New("presign.request_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateSpool() error {
	if !c.Spool.Enabled {
		return nil
	}
	if c.Spool.PollIntervalSeconds <= 0 {
		return errors.New("spool.poll_interval_seconds must be positive")
	}
	if c.Spool.DefaultContentType == "" {
		return errors.New("spool.default_content_type must be set when spool.enabled is true")
	}
	return nil
}

func (c *Config) validateNetwork() error {
	if c.Network.ProbeIntervalSeconds <= 0 {
		return errors.New("network.probe_interval_seconds must be positive")
	}
	if c.Network.ProbeTimeoutSeconds <= 0 {
		return errors.New("network.probe_timeout_seconds must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
