package store

import (
	"database/sql"
	"time"

	"sumbench/internal/errs"
	"sumbench/internal/logging"
	"sumbench/internal/types"
)

// SaveAggregatedScores upserts the per-model leaderboard rows for a run
// in one transaction. Aggregation is idempotent: re-running replaces.
func (s *Store) SaveAggregatedScores(runID string, scores []*types.NormalizedScores) error {
	const op = "store.SaveAggregatedScores"
	s.mu.Lock()
	defer s.mu.Unlock()

	now := fmtTime(time.Now())
	err := s.transact(op, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO aggregated_scores (run_id, model_id, scores, updated_at)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return errs.E(errs.KindStorage, op, err)
		}
		defer stmt.Close()

		for _, sc := range scores {
			blob, err := marshalBlob(op, sc)
			if err != nil {
				return err
			}
			if _, err := stmt.Exec(runID, sc.ModelID, blob, now); err != nil {
				return errs.E(errs.KindStorage, op, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logging.Store("Saved aggregated scores for %d models", len(scores))
	return nil
}

// GetAggregatedScores returns a run's leaderboard rows ordered by model
// id. Callers rank by Overall.
func (s *Store) GetAggregatedScores(runID string) ([]*types.NormalizedScores, error) {
	const op = "store.GetAggregatedScores"
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT model_id, scores FROM aggregated_scores
		WHERE run_id = ? ORDER BY model_id`, runID)
	if err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	defer rows.Close()

	var scores []*types.NormalizedScores
	for rows.Next() {
		var (
			modelID string
			blob    string
		)
		if err := rows.Scan(&modelID, &blob); err != nil {
			return nil, errs.E(errs.KindStorage, op, err)
		}
		sc := &types.NormalizedScores{}
		if err := unmarshalRow(op, runID+"/"+modelID, blob, sc); err != nil {
			return nil, err
		}
		sc.ModelID = modelID
		scores = append(scores, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	return scores, nil
}
