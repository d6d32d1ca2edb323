package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/capitalize-ai/persona-relay/pkg/logger"
)

type flakyClient struct {
	failures int
	calls    int
	content  string
	err      error
}

func (c *flakyClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	c.calls++
	if c.calls <= c.failures {
		return nil, c.err
	}
	return &CompletionResponse{Content: c.content}, nil
}

func (c *flakyClient) Name() string { return "flaky" }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("error")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestGenerateSucceedsOnThirdAttemptWithBackoff(t *testing.T) {
	client := &flakyClient{failures: 2, content: "ok", err: errors.New("boom")}
	g := NewGenerator(client, testLogger(t))

	var slept []time.Duration
	g.sleep = func(d time.Duration) { slept = append(slept, d) }

	got, err := g.Generate(context.Background(), &CompletionRequest{Model: "m"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
	if client.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", client.calls)
	}
	if len(slept) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %d", len(slept))
	}
	if slept[0] < time.Second {
		t.Errorf("first backoff should be >= 1s, got %v", slept[0])
	}
	if slept[1] < 2*time.Second {
		t.Errorf("second backoff should be >= 2s, got %v", slept[1])
	}
}

func TestGenerateExhaustsRetries(t *testing.T) {
	client := &flakyClient{failures: 10, err: errors.New("down")}
	g := NewGenerator(client, testLogger(t))
	g.sleep = func(time.Duration) {}

	_, err := g.Generate(context.Background(), &CompletionRequest{Model: "m"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %T", err)
	}
	if genErr.Attempts != 3 {
		t.Errorf("expected 3 attempts recorded, got %d", genErr.Attempts)
	}
	if client.calls != 3 {
		t.Errorf("expected no fourth attempt, got %d calls", client.calls)
	}
}

func TestGenerateAgainstFlakyHTTPBackend(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"finally"}}]}`))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient("test-key", srv.URL+"/v1")
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	g := NewGenerator(client, testLogger(t))
	g.sleep = func(time.Duration) {}

	got, err := g.Generate(context.Background(), &CompletionRequest{
		Model:    "test-model",
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "finally" {
		t.Errorf("expected %q, got %q", "finally", got)
	}
	if hits != 3 {
		t.Errorf("expected 3 backend hits, got %d", hits)
	}
}
