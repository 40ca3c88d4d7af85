package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers used to classify delivery failures. Wrap tags an error with
// one of these so callers can branch on class without string matching.
var (
	// ErrTargetAcquisition covers failures to obtain an upload target from the
	// presign service, including auth and validation rejections.
	ErrTargetAcquisition = errors.New("target acquisition failed")
	// ErrTransmit covers transport failures: network errors, timeouts, and
	// non-success responses from the delivery target.
	ErrTransmit = errors.New("transmit failed")
	// ErrRetriesExhausted marks a chunk that used its full retry budget and
	// now requires manual intervention.
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrValidation       = errors.New("validation error")
	ErrConfiguration    = errors.New("configuration error")
	ErrTimeout          = errors.New("timeout")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransmit
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether a delivery error should be retried with backoff.
// Target acquisition failures, transmit failures, and timeouts are transient;
// everything else requires intervention.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrRetriesExhausted):
		return false
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return false
	case errors.Is(err, ErrTargetAcquisition), errors.Is(err, ErrTransmit), errors.Is(err, ErrTimeout):
		return true
	default:
		return true
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
