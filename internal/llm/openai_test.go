package llm

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sumbench/internal/errs"
)

// chatServer fakes a /chat/completions endpoint with a scripted
// handler per test.
func chatServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIComplete(t *testing.T) {
	var gotReq openAIRequest
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-test",
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": "A summary."},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 100, "completion_tokens": 20},
		})
	})

	c := NewOpenAIClient(Options{
		APIKey:         "test-key",
		BaseURL:        srv.URL,
		Model:          "gpt-test",
		CostInPerMTok:  2.5,
		CostOutPerMTok: 10,
	})

	comp, err := c.Complete(context.Background(), &Request{
		System:      "You summarize code.",
		Messages:    []Message{{Role: "user", Content: "summarize this"}},
		Temperature: 0.2,
		MaxTokens:   512,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if comp.Content != "A summary." {
		t.Errorf("content = %q", comp.Content)
	}
	if comp.Usage.InputTokens != 100 || comp.Usage.OutputTokens != 20 {
		t.Errorf("usage = %+v", comp.Usage)
	}
	wantCost := 100*2.5/1e6 + 20*10.0/1e6
	if math.Abs(comp.Usage.Cost-wantCost) > 1e-12 {
		t.Errorf("cost = %g, want %g", comp.Usage.Cost, wantCost)
	}

	// System prompt travels as the first message.
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("request messages = %+v", gotReq.Messages)
	}
	if gotReq.MaxTokens != 512 {
		t.Errorf("max_tokens = %d", gotReq.MaxTokens)
	}
}

func TestOpenAICompleteRateLimited(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	})

	c := NewOpenAIClient(Options{APIKey: "k", BaseURL: srv.URL, Model: "gpt-test"})
	_, err := c.Complete(context.Background(), UserRequest("", "hi"))
	if errs.KindOf(err) != errs.KindRateLimit {
		t.Fatalf("kind = %s, want rate_limit", errs.KindOf(err))
	}
	if errs.RetryAfterOf(err) != 3*time.Second {
		t.Errorf("retry after = %v", errs.RetryAfterOf(err))
	}
	if errs.ModelOf(err) != "gpt-test" {
		t.Errorf("model = %q", errs.ModelOf(err))
	}
}

func TestOpenAICompleteTruncation(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": "partial"},
				"finish_reason": "length",
			}},
		})
	})

	c := NewOpenAIClient(Options{APIKey: "k", BaseURL: srv.URL, Model: "gpt-test"})
	_, err := c.Complete(context.Background(), UserRequest("", "hi"))
	if errs.KindOf(err) != errs.KindMaxTokens {
		t.Fatalf("kind = %s, want max_tokens", errs.KindOf(err))
	}
}

func TestOpenAIRequiresKeyUnlessLocal(t *testing.T) {
	c := NewOpenAIClient(Options{Model: "gpt-test"})
	if _, err := c.Complete(context.Background(), UserRequest("", "hi")); errs.KindOf(err) != errs.KindConfig {
		t.Errorf("kind = %s, want config", errs.KindOf(err))
	}

	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("local client should not send an Authorization header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": "hello"},
				"finish_reason": "stop",
			}},
		})
	})

	local := NewOllamaChatClient(Options{BaseURL: srv.URL, Model: "qwen2.5-coder:7b"})
	if !local.Local() {
		t.Error("ollama chat client should report local")
	}
	comp, err := local.Complete(context.Background(), UserRequest("", "hi"))
	if err != nil {
		t.Fatalf("local Complete failed: %v", err)
	}
	if comp.Content != "hello" {
		t.Errorf("content = %q", comp.Content)
	}
}

func TestCompleteWithRetryAgainstServer(t *testing.T) {
	attempts := 0
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": "second try"},
				"finish_reason": "stop",
			}},
		})
	})

	c := NewOpenAIClient(Options{APIKey: "k", BaseURL: srv.URL, Model: "gpt-test"})
	comp, err := CompleteWithRetry(context.Background(), c, UserRequest("", "hi"))
	if err != nil {
		t.Fatalf("CompleteWithRetry failed: %v", err)
	}
	if comp.Content != "second try" || attempts != 2 {
		t.Errorf("content = %q, attempts = %d", comp.Content, attempts)
	}
}
