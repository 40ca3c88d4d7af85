// Package logging provides slog construction with console and JSON handlers
// plus shared attribute helpers used across shuttle components.
package logging
