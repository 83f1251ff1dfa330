package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestNoopEmbedReturnsEmptyVectors(t *testing.T) {
	out, err := Noop{}.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out))
	}
	if (Noop{}).Available() {
		t.Error("Noop should never be available")
	}
}

func TestHTTPClientAvailable(t *testing.T) {
	c := NewHTTPClient("http://localhost:11434/api/embeddings", "", zerolog.Nop())
	if c.Available() {
		t.Error("expected Available() false with empty model")
	}
	c2 := NewHTTPClient("http://localhost:11434/api/embeddings", "nomic-embed-text", zerolog.Nop())
	if !c2.Available() {
		t.Error("expected Available() true with a model configured")
	}
}

func TestHTTPClientEmbedSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "nomic-embed-text", zerolog.Nop())
	out, err := c.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || len(out[0]) != 3 {
		t.Fatalf("unexpected embedding result: %+v", out)
	}
}

func TestHTTPClientEmbedPermanentErrorOnBadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad model name"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "nonexistent-model", zerolog.Nop())
	_, err := c.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestHTTPClientEmbedContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewHTTPClient(srv.URL, "nomic-embed-text", zerolog.Nop())
	_, err := c.Embed(ctx, []string{"hello"})
	if err == nil {
		t.Fatal("expected error when context is canceled")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"context canceled", context.Canceled, false},
		{"context deadline exceeded", context.DeadlineExceeded, false},
		{"generic error", errors.New("some error"), false},
		{"timeout error", timeoutErr{}, true},
		{"retryable status 429", &statusError{code: 429}, true},
		{"retryable status 503", &statusError{code: 503}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.expected {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}
