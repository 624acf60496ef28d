package store

import (
	"database/sql"

	"github.com/google/uuid"

	"sumbench/internal/errs"
	"sumbench/internal/logging"
	"sumbench/internal/types"
)

// InsertPairwiseResults writes a batch of comparisons in one
// transaction. The unique key (run, unit, model_a, model_b, judge,
// position_swapped) makes re-judging after a resume a replace, not a
// duplicate.
func (s *Store) InsertPairwiseResults(results []*types.PairwiseResult) error {
	const op = "store.InsertPairwiseResults"
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.transact(op, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO pairwise_results
				(id, run_id, model_a, model_b, code_unit_id, judge_model,
				 winner, confidence, position_swapped, reasoning, criteria, cost)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return errs.E(errs.KindStorage, op, err)
		}
		defer stmt.Close()

		for _, r := range results {
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			var criteria any
			if len(r.Criteria) > 0 {
				blob, err := marshalBlob(op, r.Criteria)
				if err != nil {
					return err
				}
				criteria = blob
			}
			if _, err := stmt.Exec(r.ID, r.RunID, r.ModelA, r.ModelB, r.CodeUnitID,
				r.JudgeModel, string(r.Winner), string(r.Confidence),
				boolToInt(r.PositionSwapped), r.Reasoning, criteria, r.Cost); err != nil {
				return errs.E(errs.KindStorage, op, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logging.Store("Inserted %d pairwise results", len(results))
	return nil
}

// GetPairwiseResults returns every comparison of a run.
func (s *Store) GetPairwiseResults(runID string) ([]*types.PairwiseResult, error) {
	const op = "store.GetPairwiseResults"
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, run_id, model_a, model_b, code_unit_id, judge_model,
			winner, confidence, position_swapped, reasoning, criteria, cost
		FROM pairwise_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	defer rows.Close()

	var results []*types.PairwiseResult
	for rows.Next() {
		var (
			r                  types.PairwiseResult
			winner, confidence string
			swapped            int
			criteria           sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.ModelA, &r.ModelB, &r.CodeUnitID,
			&r.JudgeModel, &winner, &confidence, &swapped, &r.Reasoning,
			&criteria, &r.Cost); err != nil {
			return nil, errs.E(errs.KindStorage, op, err)
		}
		r.Winner = types.PairwiseWinner(winner)
		r.Confidence = types.Confidence(confidence)
		r.PositionSwapped = swapped != 0
		if criteria.Valid && criteria.String != "" {
			if err := unmarshalRow(op, r.ID, criteria.String, &r.Criteria); err != nil {
				return nil, err
			}
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	return results, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
