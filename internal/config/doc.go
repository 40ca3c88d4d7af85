// Package config loads, validates, and defaults shuttle's TOML configuration.
package config
