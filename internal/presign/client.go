package presign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shuttle/internal/config"
	"shuttle/internal/services"
)

const userAgent = "Shuttle-Go/0.1.0"

// UploadTarget is a short-lived delivery destination issued by the presign
// service for exactly one chunk.
type UploadTarget struct {
	URL       string `json:"url"`
	RemoteKey string `json:"remote_key"`
	ExpiresIn int    `json:"expires_in_seconds"`
}

// Issuer obtains delivery targets for chunks awaiting upload.
type Issuer interface {
	RequestUploadTarget(ctx context.Context, sessionID string, seq int64, contentType string) (*UploadTarget, error)
}

// Client talks to the presign endpoint over HTTP.
type Client struct {
	baseURL   string
	authToken string
	client    *http.Client
}

// NewClient builds a presign client from configuration.
func NewClient(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.Presign.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.Presign.BaseURL, "/"),
		authToken: cfg.Presign.AuthToken,
		client:    &http.Client{Timeout: timeout},
	}
}

type targetRequest struct {
	SessionID   string `json:"session_id"`
	Seq         int64  `json:"seq"`
	ContentType string `json:"content_type"`
}

// RequestUploadTarget asks the presign service for a delivery target. Any
// failure, auth or validation included, surfaces as a target acquisition
// error; the scheduler treats it like a transmit failure.
func (c *Client) RequestUploadTarget(ctx context.Context, sessionID string, seq int64, contentType string) (*UploadTarget, error) {
	body, err := json.Marshal(targetRequest{
		SessionID:   sessionID,
		Seq:         seq,
		ContentType: contentType,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTargetAcquisition, "presign", "request-target", "encode request", err)
	}

	endpoint := c.baseURL + "/v1/chunks/presign"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrTargetAcquisition, "presign", "request-target", "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTargetAcquisition, "presign", "request-target", "send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := fmt.Sprintf("presign service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
		return nil, services.Wrap(services.ErrTargetAcquisition, "presign", "request-target", msg, nil)
	}

	var target UploadTarget
	if err := json.NewDecoder(resp.Body).Decode(&target); err != nil {
		return nil, services.Wrap(services.ErrTargetAcquisition, "presign", "request-target", "decode response", err)
	}
	if strings.TrimSpace(target.URL) == "" {
		return nil, services.Wrap(services.ErrTargetAcquisition, "presign", "request-target", "response missing target url", nil)
	}
	return &target, nil
}
