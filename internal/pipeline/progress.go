package pipeline

import (
	"sort"
	"sync"

	"sumbench/internal/errs"
	"sumbench/internal/types"
)

// ProgressEvent is one tick of phase progress, consumed by the TUI and
// the plain-mode progress log.
type ProgressEvent struct {
	RunID     string
	Phase     types.Phase
	Completed int
	Total     int
	Message   string
}

// FailureTally accumulates per-item failures across phases, bucketed by
// error kind for the report's failure appendix.
type FailureTally struct {
	mu      sync.Mutex
	byPhase map[types.Phase][]Failure
	byKind  map[errs.Kind]int
	total   int
}

func NewFailureTally() *FailureTally {
	return &FailureTally{
		byPhase: make(map[types.Phase][]Failure),
		byKind:  make(map[errs.Kind]int),
	}
}

// Add records a phase's absorbed failures.
func (t *FailureTally) Add(phase types.Phase, failures []Failure) {
	if len(failures) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byPhase[phase] = append(t.byPhase[phase], failures...)
	for _, f := range failures {
		t.byKind[errs.KindOf(f.Err)]++
		t.total++
	}
}

// Total returns how many failures were absorbed across all phases.
func (t *FailureTally) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// ByKind returns kind counts sorted by kind name.
func (t *FailureTally) ByKind() []KindCount {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]KindCount, 0, len(t.byKind))
	for k, n := range t.byKind {
		out = append(out, KindCount{Kind: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Phase returns the failures one phase absorbed.
func (t *FailureTally) Phase(phase types.Phase) []Failure {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byPhase[phase]
}

// KindCount pairs an error kind with its occurrence count.
type KindCount struct {
	Kind  errs.Kind `json:"kind"`
	Count int       `json:"count"`
}
