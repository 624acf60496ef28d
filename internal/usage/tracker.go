// Package usage accumulates the token spend of a run. Instrumented
// clients report every completion here, broken down by model, provider,
// and pipeline phase, so a run can answer what it cost without
// consulting provider dashboards.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Totals sums token counts and configured cost for one bucket.
type Totals struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalTokens  int64   `json:"total_tokens"`
	Cost         float64 `json:"cost,omitempty"`
}

func (t *Totals) add(input, output int, cost float64) {
	t.InputTokens += int64(input)
	t.OutputTokens += int64(output)
	t.TotalTokens += int64(input + output)
	t.Cost += cost
}

// Snapshot is a point-in-time copy of the accumulated usage.
type Snapshot struct {
	Calls      int64             `json:"calls"`
	Run        Totals            `json:"run"`
	ByModel    map[string]Totals `json:"by_model"`
	ByProvider map[string]Totals `json:"by_provider"`
	ByPhase    map[string]Totals `json:"by_phase"`
}

type phaseKey struct{}

// WithPhase tags ctx so calls made under it are attributed to phase.
// The orchestrator tags each executor's context; calls made outside a
// phase land in the "untagged" bucket.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, phaseKey{}, phase)
}

func phaseFrom(ctx context.Context) string {
	if v, ok := ctx.Value(phaseKey{}).(string); ok && v != "" {
		return v
	}
	return "untagged"
}

// Tracker accumulates per-call token usage. Safe for concurrent use;
// evaluators fan out across models and record from many goroutines.
type Tracker struct {
	mu   sync.Mutex
	snap Snapshot
}

func NewTracker() *Tracker {
	return &Tracker{
		snap: Snapshot{
			ByModel:    make(map[string]Totals),
			ByProvider: make(map[string]Totals),
			ByPhase:    make(map[string]Totals),
		},
	}
}

// Record adds one call's tokens to the run, model, provider, and phase
// buckets.
func (t *Tracker) Record(ctx context.Context, model, provider string, input, output int, cost float64) {
	phase := phaseFrom(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Calls++
	t.snap.Run.add(input, output, cost)
	addTo(t.snap.ByModel, model, input, output, cost)
	addTo(t.snap.ByProvider, provider, input, output, cost)
	addTo(t.snap.ByPhase, phase, input, output, cost)
}

func addTo(m map[string]Totals, key string, input, output int, cost float64) {
	entry := m[key]
	entry.add(input, output, cost)
	m[key] = entry
}

// Snapshot returns a copy of the accumulated usage. The maps are
// copied, so the caller can hold the result across further recording.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.snap
	snap.ByModel = copyTotals(t.snap.ByModel)
	snap.ByProvider = copyTotals(t.snap.ByProvider)
	snap.ByPhase = copyTotals(t.snap.ByPhase)
	return snap
}

func copyTotals(src map[string]Totals) map[string]Totals {
	dst := make(map[string]Totals, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// WriteFile persists the snapshot as indented JSON, creating parent
// directories as needed.
func (t *Tracker) WriteFile(path string) error {
	snap := t.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode usage: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create usage dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
