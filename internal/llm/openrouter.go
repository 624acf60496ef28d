package llm

import (
	"net/http"
	"time"
)

// NewOpenRouterClient creates a client for OpenRouter's
// OpenAI-compatible API.
func NewOpenRouterClient(opts Options) *OpenAIClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://openrouter.ai/api/v1"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &OpenAIClient{
		opts:       opts,
		provider:   "openrouter",
		headers:    map[string]string{"X-Title": "sumbench"},
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}
