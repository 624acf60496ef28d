// Package retrieval scores generator models by how findable their
// summaries are. Every model's summary of every unit goes into one
// combined vector index; each query is then ranked against all of them
// and a model is judged by where its summary of the target unit landed
// relative to its competitors'.
package retrieval

import (
	"context"

	"sumbench/internal/errs"
	"sumbench/internal/logging"
	"sumbench/internal/pipeline"
	"sumbench/internal/types"
	"sumbench/internal/vecindex"
)

// Executor implements the retrieval evaluation phase.
type Executor struct{}

func NewExecutor() *Executor { return &Executor{} }

func (e *Executor) Phase() types.Phase { return types.PhaseRetrieval }

func (e *Executor) Execute(ctx context.Context, pctx *pipeline.Context) (*pipeline.Outcome, error) {
	cfg := pctx.Config.Evaluation.Retrieval

	skip := func(reason string) (*pipeline.Outcome, error) {
		if err := pctx.State.StartPhase(pctx.RunID, types.PhaseRetrieval, 0); err != nil {
			return nil, err
		}
		return &pipeline.Outcome{SkipReason: reason}, nil
	}
	if !cfg.Enabled {
		return skip("retrieval evaluator disabled")
	}

	summaries, err := pctx.Store.GetSummaries(pctx.RunID, "")
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return skip("no summaries to index")
	}
	units, err := pctx.Store.GetCodeUnits(pctx.RunID)
	if err != nil {
		return nil, err
	}

	// Query generation happens before the phase is marked started: an
	// interrupted pass keeps what it persisted and fills the gaps on
	// the next attempt.
	failures, err := ensureQueries(ctx, pctx, units)
	if err != nil {
		return nil, err
	}
	queries, err := collectQueries(pctx, units)
	if err != nil {
		return nil, err
	}

	index, err := buildIndex(ctx, pctx, summaries)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(queries))
	for i, q := range queries {
		texts[i] = q.Text
	}
	vectors, err := pctx.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	total := len(queries)
	if err := pctx.State.StartPhase(pctx.RunID, types.PhaseRetrieval, total); err != nil {
		return nil, err
	}

	done, err := scoredQueries(pctx)
	if err != nil {
		return nil, err
	}
	summaryID := make(map[string]string, len(summaries))
	for _, s := range summaries {
		summaryID[s.CodeUnitID+"\x00"+s.ModelID] = s.ID
	}

	completed := 0
	for _, q := range queries {
		if done[q.ID] {
			completed++
		}
	}
	logging.Retrieval("Retrieval: %d queries over %d entries from %d models (%d already scored)",
		total, index.Len(), index.ModelCount(), completed)

	for i, q := range queries {
		if done[q.ID] {
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		ranks, err := index.RankModels(vectors[i], q.CodeUnitID)
		if err != nil {
			return nil, errs.E(errs.KindCorruptedData, "retrieval.Execute", err)
		}
		for _, mr := range ranks {
			result := &types.EvaluationResult{
				RunID:     pctx.RunID,
				SummaryID: summaryID[q.CodeUnitID+"\x00"+mr.ModelID],
				Kind:      types.KindRetrieval,
				Retrieval: &types.RetrievalPayload{
					QueryID:        q.ID,
					QueryType:      q.Type,
					ModelID:        mr.ModelID,
					Rank:           mr.Rank,
					ModelRank:      mr.ModelRank,
					IsWinner:       mr.IsWinner,
					ReciprocalRank: mr.ReciprocalRank,
					HitAtK:         hitAtK(mr.Rank, cfg.KValues),
					PoolSize:       index.Len(),
					TotalModels:    index.ModelCount(),
				},
			}
			if err := pctx.Store.InsertEvaluationResult(result); err != nil {
				return nil, err
			}
		}

		completed++
		if err := pctx.State.UpdateProgress(pctx.RunID, types.PhaseRetrieval, completed, q.ID); err != nil {
			return nil, err
		}
		pctx.Report(types.PhaseRetrieval, completed, total, q.Type)
	}

	return &pipeline.Outcome{Total: total, Completed: completed, Failures: failures}, nil
}

// buildIndex embeds every summary through the cache and adds them in
// store order (sorted by code unit then model), which fixes the
// tie-break for identical similarities.
func buildIndex(ctx context.Context, pctx *pipeline.Context, summaries []*types.GeneratedSummary) (*vecindex.Index, error) {
	texts := make([]string, len(summaries))
	for i, s := range summaries {
		texts[i] = s.Text
	}
	vectors, err := pctx.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	index := vecindex.New()
	for i, s := range summaries {
		if err := index.Add(s.CodeUnitID, s.ModelID, vectors[i]); err != nil {
			return nil, errs.E(errs.KindCorruptedData, "retrieval.buildIndex", err)
		}
	}
	return index, nil
}

// scoredQueries returns the query ids already present in stored
// retrieval results.
func scoredQueries(pctx *pipeline.Context) (map[string]bool, error) {
	prior, err := pctx.Store.GetEvaluationResults(pctx.RunID, types.KindRetrieval)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(prior))
	for _, r := range prior {
		done[r.Retrieval.QueryID] = true
	}
	return done, nil
}

func hitAtK(rank int, ks []int) map[int]bool {
	hits := make(map[int]bool, len(ks))
	for _, k := range ks {
		hits[k] = rank <= k
	}
	return hits
}
