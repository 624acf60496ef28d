// Package generate produces each generator model's summaries of the
// extracted code units. All models run in parallel, each behind its own
// worker pool, and finished summaries land in replace-on-conflict
// batches so a rerun never duplicates rows.
package generate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sumbench/internal/config"
	"sumbench/internal/errs"
	"sumbench/internal/llm"
	"sumbench/internal/logging"
	"sumbench/internal/pipeline"
	"sumbench/internal/types"
)

// insertBatchSize bounds how many summaries one transaction writes.
const insertBatchSize = 16

// Executor implements the generation phase.
type Executor struct{}

func NewExecutor() *Executor { return &Executor{} }

func (e *Executor) Phase() types.Phase { return types.PhaseGeneration }

// genResult is one worker's outcome: a summary or an absorbed failure.
type genResult struct {
	sum  *types.GeneratedSummary
	item string
	err  error
}

func (e *Executor) Execute(ctx context.Context, pctx *pipeline.Context) (*pipeline.Outcome, error) {
	units, err := pctx.Store.GetCodeUnits(pctx.RunID)
	if err != nil {
		return nil, err
	}
	generators := pctx.Config.GeneratorIDs()
	total := len(units) * len(generators)

	// Resume: every stored (unit, model) pair is work already done.
	existing, err := pctx.Store.GetSummaries(pctx.RunID, "")
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(existing))
	for _, s := range existing {
		done[s.CodeUnitID+"\x00"+s.ModelID] = true
	}

	if err := pctx.State.StartPhase(pctx.RunID, types.PhaseGeneration, total); err != nil {
		return nil, err
	}

	parallelism := pctx.Config.Generation.Parallelism
	if parallelism <= 0 {
		parallelism = 4
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers, wctx := errgroup.WithContext(runCtx)
	results := make(chan genResult, 4*parallelism)

	pending := 0
	for _, modelID := range generators {
		spec, ok := pctx.Config.Generator(modelID)
		if !ok {
			return nil, errs.New(errs.KindConfig, "generate.Execute", "no spec for generator %s", modelID)
		}
		client, err := pctx.Registry.Client(modelID)
		if err != nil {
			return nil, err
		}

		var tasks []*types.CodeUnit
		for _, u := range units {
			if !done[u.ID+"\x00"+modelID] {
				tasks = append(tasks, u)
			}
		}
		pending += len(tasks)
		if len(tasks) == 0 {
			continue
		}

		workers.Go(func() error {
			pool, poolCtx := errgroup.WithContext(wctx)
			pool.SetLimit(parallelism)
			for _, u := range tasks {
				pool.Go(func() error {
					sum, err := summarize(poolCtx, client, spec, u)
					if err != nil {
						if errors.Is(err, context.Canceled) || errs.PhaseFatal(errs.KindOf(err)) {
							return err
						}
					}
					select {
					case results <- genResult{sum: sum, item: u.ID + "/" + spec.ID, err: err}:
						return nil
					case <-poolCtx.Done():
						return poolCtx.Err()
					}
				})
			}
			return pool.Wait()
		})
	}

	logging.Generate("Generation: %d tasks across %d models (%d already stored)",
		pending, len(generators), len(existing))

	// The collector is the only writer; a collector failure cancels the
	// workers so their guarded sends unblock.
	var (
		completed  = len(existing)
		failures   []pipeline.Failure
		collected  sync.WaitGroup
		collectErr error
	)
	collected.Add(1)
	go func() {
		defer collected.Done()
		collectErr = e.collect(pctx, results, &completed, total, &failures)
		if collectErr != nil {
			cancel()
		}
	}()

	werr := workers.Wait()
	close(results)
	collected.Wait()

	if collectErr != nil {
		return nil, collectErr
	}
	if werr != nil {
		return nil, werr
	}

	return &pipeline.Outcome{Total: total, Completed: completed, Failures: failures}, nil
}

// collect drains worker results, batching inserts and advancing the
// durable cursor. Failures advance the counter too: the work was
// attempted, and resumption finds retry candidates by diffing stored
// rows, not by trusting the count.
func (e *Executor) collect(pctx *pipeline.Context, results <-chan genResult, completed *int, total int, failures *[]pipeline.Failure) error {
	batch := make([]*types.GeneratedSummary, 0, insertBatchSize)
	lastID := ""

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := pctx.Store.InsertSummaries(batch); err != nil {
			return err
		}
		lastID = batch[len(batch)-1].ID
		batch = batch[:0]
		return pctx.State.UpdateProgress(pctx.RunID, types.PhaseGeneration, *completed, lastID)
	}

	for res := range results {
		*completed++
		if res.err != nil {
			*failures = append(*failures, pipeline.Failure{Item: res.item, Err: res.err})
			logging.GenerateWarn("Summary failed for %s: %v", res.item, res.err)
			pctx.Report(types.PhaseGeneration, *completed, total, res.item)
			continue
		}
		batch = append(batch, res.sum)
		pctx.Report(types.PhaseGeneration, *completed, total, res.sum.ModelID)
		if len(batch) >= insertBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	// Final cursor write covers trailing failures after the last flush.
	return pctx.State.UpdateProgress(pctx.RunID, types.PhaseGeneration, *completed, lastID)
}

// summarize asks one model for one summary, with the shared retry
// policy and per-model sampling settings.
func summarize(ctx context.Context, client llm.Client, spec config.ModelSpec, u *types.CodeUnit) (*types.GeneratedSummary, error) {
	req := llm.UserRequest(summarySystem, summaryPrompt(u))
	req.Temperature = spec.Temperature
	req.MaxTokens = spec.MaxTokens

	start := time.Now()
	comp, err := llm.CompleteWithRetry(ctx, client, req)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(comp.Content)
	if text == "" {
		return nil, errs.New(errs.KindInvalidResponse, "generate.summarize", "empty summary").WithModel(spec.ID)
	}

	return &types.GeneratedSummary{
		ID:         uuid.NewString(),
		RunID:      u.RunID,
		CodeUnitID: u.ID,
		ModelID:    spec.ID,
		Text:       text,
		Metadata: types.SummaryMetadata{
			LatencyMS:    time.Since(start).Milliseconds(),
			Cost:         comp.Usage.Cost,
			InputTokens:  comp.Usage.InputTokens,
			OutputTokens: comp.Usage.OutputTokens,
		},
	}, nil
}
