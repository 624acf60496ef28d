package llm

import (
	"context"
	"sort"
	"strings"
	"time"

	"sumbench/internal/config"
	"sumbench/internal/errs"
	"sumbench/internal/logging"
)

// Registry holds one client per configured model, built once per run
// and injected into the executors.
type Registry struct {
	clients map[string]Client
	cfg     *config.Config
}

// NewRegistry builds clients for every configured generator and judge.
// Models appearing in both lists share a client.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	const op = "llm.NewRegistry"

	r := &Registry{clients: make(map[string]Client), cfg: cfg}
	specs := make([]config.ModelSpec, 0, len(cfg.Models.Generators)+len(cfg.Models.Judges))
	specs = append(specs, cfg.Models.Generators...)
	specs = append(specs, cfg.Models.Judges...)

	for _, spec := range specs {
		if _, ok := r.clients[spec.ID]; ok {
			continue
		}
		client, err := newClient(spec, cfg.TimeoutFor(spec.ID))
		if err != nil {
			return nil, err
		}
		r.clients[spec.ID] = client
	}
	if len(r.clients) == 0 {
		return nil, errs.New(errs.KindConfig, op, "no models configured")
	}

	logging.LLM("Registry built with %d clients", len(r.clients))
	return r, nil
}

func newClient(spec config.ModelSpec, timeout time.Duration) (Client, error) {
	opts := Options{
		APIKey:         spec.APIKey,
		BaseURL:        spec.BaseURL,
		Model:          spec.ID,
		Timeout:        timeout,
		CostInPerMTok:  spec.CostInPerMTok,
		CostOutPerMTok: spec.CostOutPerMTok,
	}
	switch strings.ToLower(spec.Provider) {
	case "anthropic":
		return NewAnthropicClient(opts), nil
	case "openai":
		return NewOpenAIClient(opts), nil
	case "gemini", "google":
		return NewGeminiClient(opts), nil
	case "openrouter":
		return NewOpenRouterClient(opts), nil
	case "ollama":
		return NewOllamaChatClient(opts), nil
	default:
		return nil, errs.New(errs.KindConfig, "llm.newClient",
			"unknown provider %q for model %s", spec.Provider, spec.ID)
	}
}

// Recorder receives the token usage of every completion made through
// an instrumented client.
type Recorder interface {
	Record(ctx context.Context, model, provider string, input, output int, cost float64)
}

// Instrument wraps every registered client so completions report their
// usage to rec. Call before handing the registry to the executors.
func (r *Registry) Instrument(rec Recorder) {
	for id, c := range r.clients {
		r.clients[id] = &trackedClient{Client: c, rec: rec}
	}
}

// trackedClient reports usage from completions that returned a
// response. Failed calls with no response carry no usage to report.
type trackedClient struct {
	Client
	rec Recorder
}

func (t *trackedClient) Complete(ctx context.Context, req *Request) (*Completion, error) {
	comp, err := t.Client.Complete(ctx, req)
	if comp != nil {
		t.rec.Record(ctx, t.Model(), t.Provider(),
			comp.Usage.InputTokens, comp.Usage.OutputTokens, comp.Usage.Cost)
	}
	return comp, err
}

// Client returns the client bound to a model id.
func (r *Registry) Client(model string) (Client, error) {
	c, ok := r.clients[model]
	if !ok {
		return nil, errs.New(errs.KindConfig, "llm.Registry.Client", "no client for model %s", model)
	}
	return c, nil
}

// Has reports whether a model id is registered.
func (r *Registry) Has(model string) bool {
	_, ok := r.clients[model]
	return ok
}

// Timeout returns the per-call budget for a model. Thinking-class
// models (matched by configured name prefixes) get the long budget.
func (r *Registry) Timeout(model string) time.Duration {
	return r.cfg.TimeoutFor(model)
}

// Models returns the registered model ids, sorted.
func (r *Registry) Models() []string {
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
