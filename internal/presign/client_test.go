package presign_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"shuttle/internal/presign"
	"shuttle/internal/services"
	"shuttle/internal/testsupport"
)

func TestRequestUploadTargetSuccess(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"url":                server.URL + "/upload/recordings/sess-1/7",
			"remote_key":         "recordings/sess-1/7",
			"expires_in_seconds": 300,
		})
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithPresignURL(server.URL))
	client := presign.NewClient(cfg)

	target, err := client.RequestUploadTarget(context.Background(), "sess-1", 7, "audio/webm")
	if err != nil {
		t.Fatalf("RequestUploadTarget: %v", err)
	}
	if target.RemoteKey != "recordings/sess-1/7" {
		t.Fatalf("unexpected remote key %q", target.RemoteKey)
	}
	if target.ExpiresIn != 300 {
		t.Fatalf("unexpected expiry %d", target.ExpiresIn)
	}
	if gotAuth != "Bearer test" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotPath != "/v1/chunks/presign" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotBody["session_id"] != "sess-1" || gotBody["content_type"] != "audio/webm" {
		t.Fatalf("unexpected request body %v", gotBody)
	}
}

func TestRequestUploadTargetNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithPresignURL(server.URL))
	client := presign.NewClient(cfg)

	_, err := client.RequestUploadTarget(context.Background(), "sess-1", 1, "audio/webm")
	if !errors.Is(err, services.ErrTargetAcquisition) {
		t.Fatalf("expected ErrTargetAcquisition, got %v", err)
	}
	if !services.IsRetryable(err) {
		t.Fatal("target acquisition failures are retryable")
	}
}

func TestRequestUploadTargetMissingURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"remote_key": "k"})
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithPresignURL(server.URL))
	client := presign.NewClient(cfg)

	_, err := client.RequestUploadTarget(context.Background(), "sess-1", 1, "audio/webm")
	if !errors.Is(err, services.ErrTargetAcquisition) {
		t.Fatalf("expected ErrTargetAcquisition, got %v", err)
	}
}

func TestRequestUploadTargetUnreachableService(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPresignURL("http://127.0.0.1:1"))
	client := presign.NewClient(cfg)

	_, err := client.RequestUploadTarget(context.Background(), "sess-1", 1, "audio/webm")
	if !errors.Is(err, services.ErrTargetAcquisition) {
		t.Fatalf("expected ErrTargetAcquisition, got %v", err)
	}
}
