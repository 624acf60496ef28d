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

// GeminiClient calls the Gemini REST generateContent API.
type GeminiClient struct {
	opts       Options
	httpClient *http.Client
	pacer
}

// NewGeminiClient creates a client for the Gemini API.
func NewGeminiClient(opts Options) *GeminiClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &GeminiClient{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// geminiRole maps provider-neutral roles onto Gemini's user/model pair.
func geminiRole(role string) string {
	if role == "assistant" {
		return "model"
	}
	return "user"
}

// Complete sends one request and returns the completion.
func (c *GeminiClient) Complete(ctx context.Context, req *Request) (*Completion, error) {
	const op = "llm.gemini"
	if c.opts.APIKey == "" {
		return nil, errs.New(errs.KindConfig, op, "API key not configured for %s", c.opts.Model)
	}

	ctx, cancel := ensureDeadline(ctx, c.opts.Timeout)
	defer cancel()
	c.pace()

	start := time.Now()
	body := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		body.Contents = append(body.Contents, geminiContent{
			Role:  geminiRole(m.Role),
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.opts.BaseURL, c.opts.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.opts.APIKey)

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

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errs.E(errs.KindInvalidResponse, op, err).WithModel(c.opts.Model)
	}
	if parsed.Error != nil {
		return nil, errs.New(errs.KindUnknown, op, "API error %s: %s", parsed.Error.Status, parsed.Error.Message).WithModel(c.opts.Model)
	}
	if len(parsed.Candidates) == 0 {
		return nil, errs.New(errs.KindContentFilter, op, "no candidates returned").WithModel(c.opts.Model)
	}

	cand := parsed.Candidates[0]
	if err := classifyStop(op, c.opts.Model, cand.FinishReason); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, part := range cand.Content.Parts {
		text.WriteString(part.Text)
	}
	content := strings.TrimSpace(text.String())
	if content == "" {
		return nil, errs.New(errs.KindInvalidResponse, op, "empty completion").WithModel(c.opts.Model)
	}

	logging.LLM("[gemini] %s: completed in %v, %d out tokens",
		c.opts.Model, time.Since(start), parsed.UsageMetadata.CandidatesTokenCount)

	return &Completion{
		Content:    content,
		Model:      c.opts.Model,
		StopReason: cand.FinishReason,
		Usage: Usage{
			InputTokens:  parsed.UsageMetadata.PromptTokenCount,
			OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
			Cost:         c.opts.cost(parsed.UsageMetadata.PromptTokenCount, parsed.UsageMetadata.CandidatesTokenCount),
		},
	}, nil
}

// Model returns the bound model id.
func (c *GeminiClient) Model() string { return c.opts.Model }

// Provider returns "gemini".
func (c *GeminiClient) Provider() string { return "gemini" }

// Local reports that Gemini is a remote API.
func (c *GeminiClient) Local() bool { return false }
