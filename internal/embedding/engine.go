// Package embedding generates vector embeddings for summaries and
// queries. Two backends: Ollama (local) and Google GenAI (cloud), plus
// a store-backed cache so re-runs and resumed runs never re-embed
// unchanged text.
package embedding

import (
	"context"
	"fmt"

	"sumbench/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name, which keys the embedding cache
	Name() string

	// Local reports whether the engine runs without network cost
	Local() bool
}

// Config holds embedding engine configuration.
type Config struct {
	// Provider: "ollama" or "genai"
	Provider string `json:"provider"`

	// Ollama configuration
	Endpoint string `json:"endpoint"` // Default: "http://localhost:11434"

	// Shared
	Model string `json:"model"`

	// GenAI configuration
	APIKey   string `json:"api_key"`
	TaskType string `json:"task_type"` // e.g. "RETRIEVAL_DOCUMENT", "SEMANTIC_SIMILARITY"
}

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg Config) (Engine, error) {
	logging.Embedding("Creating embedding engine: provider=%s, model=%s", cfg.Provider, cfg.Model)

	switch cfg.Provider {
	case "ollama":
		return NewOllamaEngine(cfg.Endpoint, cfg.Model)
	case "genai":
		return NewGenAIEngine(cfg.APIKey, cfg.Model, cfg.TaskType)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'ollama' or 'genai')", cfg.Provider)
	}
}
