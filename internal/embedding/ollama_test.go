package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaDefaults(t *testing.T) {
	e, err := NewOllamaEngine("", "")
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	if e.Name() != "ollama:embeddinggemma" {
		t.Errorf("unexpected name %q", e.Name())
	}
	if !e.Local() {
		t.Error("ollama engine should report local")
	}
	if e.Dimensions() != 768 {
		t.Errorf("unexpected dimensions %d", e.Dimensions())
	}
}

func TestOllamaEmbed(t *testing.T) {
	var gotPrompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Model != "embeddinggemma" {
			t.Errorf("unexpected model %q", req.Model)
		}
		gotPrompts = append(gotPrompts, req.Prompt)
		json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embedding: []float32{0.1, 0.2, float32(len(req.Prompt))},
		})
	}))
	defer srv.Close()

	e, err := NewOllamaEngine(srv.URL, "embeddinggemma")
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 || vec[2] != 5 {
		t.Errorf("unexpected vector %v", vec)
	}
	if e.Dimensions() != 3 {
		t.Errorf("dimensions not tracked from response: %d", e.Dimensions())
	}

	batch, err := e.EmbedBatch(context.Background(), []string{"one", "three"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(batch))
	}
	if len(gotPrompts) != 3 {
		t.Errorf("expected 3 sequential requests, got %d: %v", len(gotPrompts), gotPrompts)
	}
}

func TestOllamaEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, err := NewOllamaEngine(srv.URL, "embeddinggemma")
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error from 500 response")
	}
}
