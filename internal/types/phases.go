package types

// Phase names the stages of a benchmark run in dependency order.
// Evaluation sub-phases may execute concurrently once their inputs exist;
// the order below is authoritative for cursor accounting and resumption.
type Phase string

const (
	PhaseExtraction  Phase = "extraction"
	PhaseGeneration  Phase = "generation"
	PhaseIterative   Phase = "evaluation:iterative"
	PhaseJudge       Phase = "evaluation:judge"
	PhaseContrastive Phase = "evaluation:contrastive"
	PhaseRetrieval   Phase = "evaluation:retrieval"
	PhaseDownstream  Phase = "evaluation:downstream"
	PhaseSelf        Phase = "evaluation:self"
	PhaseAggregation Phase = "aggregation"
	PhaseReporting   Phase = "reporting"
)

// phaseOrder is the canonical dependency order.
var phaseOrder = []Phase{
	PhaseExtraction,
	PhaseGeneration,
	PhaseIterative,
	PhaseJudge,
	PhaseContrastive,
	PhaseRetrieval,
	PhaseDownstream,
	PhaseSelf,
	PhaseAggregation,
	PhaseReporting,
}

// PhaseOrder returns the phases in dependency order. Callers must not
// mutate the returned slice.
func PhaseOrder() []Phase {
	return phaseOrder
}

// Index returns the position of p in the dependency order, or -1 for an
// unknown phase.
func (p Phase) Index() int {
	for i, ph := range phaseOrder {
		if ph == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is a known phase name.
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusPaused    RunStatus = "paused"
)

// Terminal reports whether no further transitions are allowed from s.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusPaused:
		return true
	}
	return false
}
