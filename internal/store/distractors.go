package store

import (
	"database/sql"

	"sumbench/internal/errs"
	"sumbench/internal/logging"
	"sumbench/internal/types"
)

// InsertDistractorSets writes a batch of candidate pools in one
// transaction. One set per (run, target unit); rebuilding replaces.
func (s *Store) InsertDistractorSets(sets []*types.DistractorSet) error {
	const op = "store.InsertDistractorSets"
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.transact(op, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO distractor_sets
				(id, run_id, target_code_unit_id, distractor_ids, difficulty)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return errs.E(errs.KindStorage, op, err)
		}
		defer stmt.Close()

		for _, set := range sets {
			ids, err := marshalBlob(op, set.DistractorIDs)
			if err != nil {
				return err
			}
			if _, err := stmt.Exec(set.ID, set.RunID, set.TargetCodeUnitID, ids,
				string(set.Difficulty)); err != nil {
				return errs.E(errs.KindStorage, op, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logging.Store("Inserted %d distractor sets", len(sets))
	return nil
}

// GetDistractorSets returns a run's candidate pools keyed in a slice
// ordered by target unit id.
func (s *Store) GetDistractorSets(runID string) ([]*types.DistractorSet, error) {
	const op = "store.GetDistractorSets"
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, run_id, target_code_unit_id, distractor_ids, difficulty
		FROM distractor_sets WHERE run_id = ? ORDER BY target_code_unit_id`, runID)
	if err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	defer rows.Close()

	var sets []*types.DistractorSet
	for rows.Next() {
		var (
			set        types.DistractorSet
			ids        string
			difficulty string
		)
		if err := rows.Scan(&set.ID, &set.RunID, &set.TargetCodeUnitID, &ids, &difficulty); err != nil {
			return nil, errs.E(errs.KindStorage, op, err)
		}
		set.Difficulty = types.Difficulty(difficulty)
		if err := unmarshalRow(op, set.ID, ids, &set.DistractorIDs); err != nil {
			return nil, err
		}
		sets = append(sets, &set)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	return sets, nil
}
