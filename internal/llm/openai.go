package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sumbench/internal/errs"
	"sumbench/internal/logging"
)

// OpenAIClient calls a /chat/completions-compatible endpoint. The
// OpenAI, OpenRouter, and local Ollama constructors all return one;
// only base URL, headers, and provider label differ.
type OpenAIClient struct {
	opts     Options
	provider string
	local    bool
	headers  map[string]string

	httpClient *http.Client
	pacer
}

// NewOpenAIClient creates a client for the OpenAI API.
func NewOpenAIClient(opts Options) *OpenAIClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &OpenAIClient{
		opts:       opts,
		provider:   "openai",
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

// NewOllamaChatClient creates a client for a local Ollama server's
// OpenAI-compatible endpoint. No API key is required.
func NewOllamaChatClient(opts Options) *OpenAIClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:11434/v1"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &OpenAIClient{
		opts:       opts,
		provider:   "ollama",
		local:      true,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends one request and returns the completion.
func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*Completion, error) {
	op := "llm." + c.provider
	if c.opts.APIKey == "" && !c.local {
		return nil, errs.New(errs.KindConfig, op, "API key not configured for %s", c.opts.Model)
	}

	ctx, cancel := ensureDeadline(ctx, c.opts.Timeout)
	defer cancel()
	c.pace()

	start := time.Now()
	body := openAIRequest{
		Model:       c.opts.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, openAIMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, openAIMessage{Role: m.Role, Content: m.Content})
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.opts.BaseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(op, c.opts.Model, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(op, c.opts.Model, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(op, c.opts.Model, resp.StatusCode, resp.Header, respBody)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errs.E(errs.KindInvalidResponse, op, err).WithModel(c.opts.Model)
	}
	if parsed.Error != nil {
		return nil, errs.New(errs.KindUnknown, op, "API error: %s", parsed.Error.Message).WithModel(c.opts.Model)
	}
	if len(parsed.Choices) == 0 {
		return nil, errs.New(errs.KindInvalidResponse, op, "no choices returned").WithModel(c.opts.Model)
	}

	choice := parsed.Choices[0]
	if err := classifyStop(op, c.opts.Model, choice.FinishReason); err != nil {
		return nil, err
	}

	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return nil, errs.New(errs.KindInvalidResponse, op, "empty completion").WithModel(c.opts.Model)
	}

	logging.LLM("[%s] %s: completed in %v, %d out tokens",
		c.provider, c.opts.Model, time.Since(start), parsed.Usage.CompletionTokens)

	return &Completion{
		Content:    content,
		Model:      c.opts.Model,
		StopReason: choice.FinishReason,
		Usage: Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			Cost:         c.opts.cost(parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens),
		},
	}, nil
}

// Model returns the bound model id.
func (c *OpenAIClient) Model() string { return c.opts.Model }

// Provider returns the provider label this client was built for.
func (c *OpenAIClient) Provider() string { return c.provider }

// Local reports whether the endpoint is a local server.
func (c *OpenAIClient) Local() bool { return c.local }
