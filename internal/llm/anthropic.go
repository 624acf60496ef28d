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

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	opts       Options
	httpClient *http.Client
	pacer
}

// NewAnthropicClient creates a client for the Anthropic API.
func NewAnthropicClient(opts Options) *AnthropicClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.anthropic.com/v1"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &AnthropicClient{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends one request and returns the completion.
func (c *AnthropicClient) Complete(ctx context.Context, req *Request) (*Completion, error) {
	const op = "llm.anthropic"
	if c.opts.APIKey == "" {
		return nil, errs.New(errs.KindConfig, op, "API key not configured for %s", c.opts.Model)
	}

	ctx, cancel := ensureDeadline(ctx, c.opts.Timeout)
	defer cancel()
	c.pace()

	start := time.Now()
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	body := anthropicRequest{
		Model:       c.opts.Model,
		MaxTokens:   maxTokens,
		System:      req.System,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.opts.BaseURL+"/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.opts.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

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

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errs.E(errs.KindInvalidResponse, op, err).WithModel(c.opts.Model)
	}
	if parsed.Error != nil {
		return nil, errs.New(errs.KindUnknown, op, "API error: %s", parsed.Error.Message).WithModel(c.opts.Model)
	}
	if err := classifyStop(op, c.opts.Model, parsed.StopReason); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(text.String())
	if content == "" {
		return nil, errs.New(errs.KindInvalidResponse, op, "no completion returned").WithModel(c.opts.Model)
	}

	logging.LLM("[anthropic] %s: completed in %v, %d out tokens",
		c.opts.Model, time.Since(start), parsed.Usage.OutputTokens)

	return &Completion{
		Content:    content,
		Model:      c.opts.Model,
		StopReason: parsed.StopReason,
		Usage: Usage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
			Cost:         c.opts.cost(parsed.Usage.InputTokens, parsed.Usage.OutputTokens),
		},
	}, nil
}

// Model returns the bound model id.
func (c *AnthropicClient) Model() string { return c.opts.Model }

// Provider returns "anthropic".
func (c *AnthropicClient) Provider() string { return "anthropic" }

// Local reports that Anthropic is a remote API.
func (c *AnthropicClient) Local() bool { return false }
