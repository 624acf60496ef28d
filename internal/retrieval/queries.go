package retrieval

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sumbench/internal/errs"
	"sumbench/internal/llm"
	"sumbench/internal/logging"
	"sumbench/internal/pipeline"
	"sumbench/internal/types"
)

// queryGenParallelism bounds concurrent query-generation calls.
const queryGenParallelism = 8

// Query type labels stored in retrieval payloads.
const (
	queryTypeSimple   = "simple"
	queryTypeSemantic = "semantic"
)

const querySystem = `You write the search queries a developer would type to find a piece of code. Respond with a JSON array of strings and nothing else.`

func queryPrompt(u *types.CodeUnit, n int) string {
	return fmt.Sprintf(`Write %d natural-language search queries a developer might use to find the %s below. Describe what it does rather than repeating its identifiers.

File: %s

%s`, n, u.Type, u.Path, u.Content)
}

// simpleQuery is the deterministic fallback probe for a unit with no
// stored queries. Its id is derived from the unit so a resumed run
// recognizes results already written for it.
func simpleQuery(u *types.CodeUnit) *types.GeneratedQuery {
	name := u.Name
	if u.Type == types.UnitFile || u.Type == types.UnitModule {
		name = path.Base(u.Path)
	}
	return &types.GeneratedQuery{
		ID:         "simple:" + u.ID,
		RunID:      u.RunID,
		CodeUnitID: u.ID,
		Type:       queryTypeSimple,
		Text:       fmt.Sprintf("%s %s %s", u.Type, name, u.Language),
		ShouldFind: true,
	}
}

// ensureQueries asks the configured query model for probes covering
// units that have none stored, persisting per unit so an interrupted
// pass keeps what it finished. Units whose generation fails fall back
// to the simple query at evaluation time; those failures are absorbed.
func ensureQueries(ctx context.Context, pctx *pipeline.Context, units []*types.CodeUnit) ([]pipeline.Failure, error) {
	cfg := pctx.Config.Evaluation.Retrieval
	if cfg.QuerySource != "llm" {
		return nil, nil
	}
	model := pctx.Config.Models.QueryModel
	client, err := pctx.Registry.Client(model)
	if err != nil {
		return nil, err
	}

	existing, err := pctx.Store.GetQueries(pctx.RunID)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(existing))
	for _, q := range existing {
		have[q.CodeUnitID] = true
	}

	perUnit := cfg.QueriesPerUnit
	if perUnit <= 0 {
		perUnit = 2
	}

	var (
		mu       sync.Mutex
		failures []pipeline.Failure
	)
	pool, poolCtx := errgroup.WithContext(ctx)
	pool.SetLimit(queryGenParallelism)
	for _, u := range units {
		if have[u.ID] {
			continue
		}
		pool.Go(func() error {
			queries, err := askForQueries(poolCtx, client, model, u, perUnit)
			if err == nil {
				err = pctx.Store.InsertQueries(queries)
			}
			if err != nil {
				if errors.Is(err, context.Canceled) || errs.PhaseFatal(errs.KindOf(err)) {
					return err
				}
				logging.RetrievalWarn("Query generation failed for %s: %v", u.ID, err)
				mu.Lock()
				failures = append(failures, pipeline.Failure{Item: u.ID, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		return failures, err
	}
	return failures, nil
}

func askForQueries(ctx context.Context, client llm.Client, model string, u *types.CodeUnit, n int) ([]*types.GeneratedQuery, error) {
	const op = "retrieval.askForQueries"

	comp, err := llm.CompleteWithRetry(ctx, client, llm.UserRequest(querySystem, queryPrompt(u, n)))
	if err != nil {
		return nil, err
	}
	var texts []string
	if err := llm.ParseJSON(op, model, comp.Content, &texts); err != nil {
		return nil, err
	}

	queries := make([]*types.GeneratedQuery, 0, n)
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		queries = append(queries, &types.GeneratedQuery{
			ID:         uuid.NewString(),
			RunID:      u.RunID,
			CodeUnitID: u.ID,
			Type:       queryTypeSemantic,
			Text:       text,
			ShouldFind: true,
		})
		if len(queries) == n {
			break
		}
	}
	if len(queries) == 0 {
		return nil, errs.New(errs.KindInvalidResponse, op, "no usable queries in response").WithModel(model)
	}
	return queries, nil
}

// collectQueries returns the evaluation workload in deterministic
// order: stored queries per unit, or the simple fallback for units
// without any.
func collectQueries(pctx *pipeline.Context, units []*types.CodeUnit) ([]*types.GeneratedQuery, error) {
	stored, err := pctx.Store.GetQueries(pctx.RunID)
	if err != nil {
		return nil, err
	}
	byUnit := make(map[string][]*types.GeneratedQuery, len(stored))
	for _, q := range stored {
		byUnit[q.CodeUnitID] = append(byUnit[q.CodeUnitID], q)
	}

	queries := make([]*types.GeneratedQuery, 0, len(units))
	for _, u := range units {
		if qs := byUnit[u.ID]; len(qs) > 0 {
			queries = append(queries, qs...)
			continue
		}
		queries = append(queries, simpleQuery(u))
	}
	return queries, nil
}
