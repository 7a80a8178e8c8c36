package ocr

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
	"github.com/rmacedo/fiscal-audit-service/internal/infrastructure/resilience"
)

func fastExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2.0,
		BreakerEnabled:      false,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRecognizeDecodesText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/recognize" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req recognizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Language != "por" || req.Filename != "nota.png" {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(recognizeResponse{Text: "CFOP: 5102"})
	}))
	defer server.Close()

	client := New(server.URL, Options{})
	text, err := client.Recognize(context.Background(), "nota.png", []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if text != "CFOP: 5102" {
		t.Fatalf("text = %q", text)
	}
}

func TestRecognizeRetriesOn503(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(recognizeResponse{Text: "ok"})
	}))
	defer server.Close()

	client := New(server.URL, Options{ResilienceExec: fastExecutor(), RequestsPerSecond: 1000})
	text, err := client.Recognize(context.Background(), "nota.png", nil)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if text != "ok" || calls.Load() != 3 {
		t.Fatalf("text=%q calls=%d", text, calls.Load())
	}
}

func TestRecognizeSurfacesClientErrorWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "unsupported media", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := New(server.URL, Options{ResilienceExec: fastExecutor(), RequestsPerSecond: 1000})
	_, err := client.Recognize(context.Background(), "nota.bin", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("422 must not be marked temporary: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestUnreachableServiceIsTemporary(t *testing.T) {
	client := New("http://127.0.0.1:1", Options{RequestsPerSecond: 1000})
	_, err := client.Recognize(context.Background(), "nota.png", nil)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("connection refusal should be temporary, got %v", err)
	}
}
