package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shuttle/internal/services"
)

const userAgent = "Shuttle-Go/0.1.0"

// Transmitter delivers chunk payloads to a presigned target.
type Transmitter interface {
	Transmit(ctx context.Context, targetURL string, payload []byte, contentType string) error
}

// HTTPTransmitter PUTs payload bytes to the target URL. Success is any 2xx
// response; everything else, timeouts included, is a transmit failure the
// scheduler retries with backoff.
type HTTPTransmitter struct {
	client *http.Client
}

// NewHTTPTransmitter builds a transmitter. The per-attempt deadline comes from
// the caller's context, so the underlying client carries no timeout of its
// own.
func NewHTTPTransmitter() *HTTPTransmitter {
	return &HTTPTransmitter{client: &http.Client{}}
}

// Transmit uploads the payload to the delivery target.
func (t *HTTPTransmitter) Transmit(ctx context.Context, targetURL string, payload []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, targetURL, bytes.NewReader(payload))
	if err != nil {
		return services.Wrap(services.ErrTransmit, "transport", "transmit", "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(payload))

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			msg := fmt.Sprintf("attempt exceeded deadline after %s", time.Since(start).Round(time.Millisecond))
			return services.Wrap(services.ErrTimeout, "transport", "transmit", msg, err)
		}
		return services.Wrap(services.ErrTransmit, "transport", "transmit", "send payload", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := fmt.Sprintf("target returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
		return services.Wrap(services.ErrTransmit, "transport", "transmit", msg, nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
