package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
	"github.com/kirillkom/fashion-recommender/internal/infrastructure/resilience"
)

func TestCompleteJSONRequestsJSONFormat(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"  {\"answer\":\"Yes\"}  "}`))
	}))
	defer server.Close()

	client := New(server.URL, "qwen2.5:7b", "nomic-embed-text")
	out, err := client.CompleteJSON(context.Background(), "is this about clothes?")
	if err != nil {
		t.Fatalf("CompleteJSON() error = %v", err)
	}
	if out != `{"answer":"Yes"}` {
		t.Fatalf("unexpected output %q", out)
	}
	if payload["format"] != "json" || payload["model"] != "qwen2.5:7b" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if payload["prompt"] != "is this about clothes?" {
		t.Fatalf("prompt not forwarded: %v", payload["prompt"])
	}
}

func TestEmbedReturnsOneVectorPerInput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2],[0.3,0.4]]}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed")
	vecs, err := client.Embed(context.Background(), []string{"red dress", "white shirt"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vecs) != 2 || vecs[1][0] != float32(0.3) {
		t.Fatalf("unexpected vectors %v", vecs)
	}

	if _, err := client.Embed(context.Background(), []string{"only one"}); err == nil {
		t.Fatalf("expected count mismatch error")
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed")
	_, err := client.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error kind, got %v", err)
	}
}

func TestGenerateRetriesThroughExecutor(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"response":"hello"}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	}, nil)
	client := NewWithOptions(server.URL, "gen", "embed", Options{ResilienceExecutor: exec})

	out, err := client.Complete(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != "hello" || calls.Load() != 2 {
		t.Fatalf("unexpected result %q after %d calls", out, calls.Load())
	}
}

func TestBadRequestIsNotTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown model", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(server.URL, "gen", "embed").Complete(context.Background(), "hi")
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("404 must not be temporary: %v", err)
	}
}

func TestErrorFieldInSuccessfulResponseFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"model \"gen\" is loading"}`))
	}))
	defer server.Close()

	_, err := New(server.URL, "gen", "embed").Complete(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "is loading") {
		t.Fatalf("expected loading error, got %v", err)
	}
}
