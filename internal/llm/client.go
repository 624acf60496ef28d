// Package llm provides chat-completion clients for the benchmark's
// model providers behind one interface, plus the shared retry policy
// and the JSON extraction used by every evaluator that parses model
// output.
//
// Clients classify failures structurally at the transport edge (HTTP
// status, finish reason, context deadline) into errs kinds; nothing
// above this package matches on provider message text.
package llm

import (
	"context"
	"sync"
	"time"
)

// Message is one conversational turn.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request is a provider-neutral completion request.
type Request struct {
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// UserRequest builds the common single-turn request.
func UserRequest(system, user string) *Request {
	return &Request{
		System:   system,
		Messages: []Message{{Role: "user", Content: user}},
	}
}

// Usage reports token consumption and configured cost for one call.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Completion is a provider-neutral completion response.
type Completion struct {
	Content    string
	Model      string
	StopReason string
	Usage      Usage
}

// Client is a chat-completion client bound to one model.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Completion, error)
	Model() string
	Provider() string
	Local() bool
}

// Options configures a provider client.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// Cost per million tokens, echoed into Usage.Cost.
	CostInPerMTok  float64
	CostOutPerMTok float64
}

func (o Options) cost(in, out int) float64 {
	return float64(in)*o.CostInPerMTok/1e6 + float64(out)*o.CostOutPerMTok/1e6
}

// defaultMaxTokens applies when a request does not set a limit.
const defaultMaxTokens = 4096

// minRequestSpacing is the floor between consecutive requests from one
// client, a guard against hammering a provider from a wide pool.
const minRequestSpacing = 100 * time.Millisecond

// pacer spaces consecutive requests. Each client embeds one.
type pacer struct {
	mu          sync.Mutex
	lastRequest time.Time
}

func (p *pacer) pace() {
	p.mu.Lock()
	elapsed := time.Since(p.lastRequest)
	if elapsed < minRequestSpacing {
		time.Sleep(minRequestSpacing - elapsed)
	}
	p.lastRequest = time.Now()
	p.mu.Unlock()
}

// ensureDeadline applies timeout when the caller's context carries no
// deadline, so every remote call has a bound even outside the
// orchestrator.
func ensureDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
