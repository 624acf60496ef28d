package store

import (
	"database/sql"
	"errors"

	"sumbench/internal/errs"
	"sumbench/internal/logging"
	"sumbench/internal/types"
)

// InsertSummaries writes a batch of summaries in one transaction.
// INSERT OR REPLACE enforces at most one row per (run, unit, model):
// regenerating a summary replaces the previous row.
func (s *Store) InsertSummaries(summaries []*types.GeneratedSummary) error {
	const op = "store.InsertSummaries"
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.transact(op, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO generated_summaries
				(id, run_id, code_unit_id, model_id, summary_text, metadata)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return errs.E(errs.KindStorage, op, err)
		}
		defer stmt.Close()

		for _, sum := range summaries {
			meta, err := marshalBlob(op, sum.Metadata)
			if err != nil {
				return err
			}
			if _, err := stmt.Exec(sum.ID, sum.RunID, sum.CodeUnitID, sum.ModelID,
				sum.Text, meta); err != nil {
				return errs.E(errs.KindStorage, op, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logging.Store("Inserted %d summaries", len(summaries))
	return nil
}

// UpdateSummary rewrites a summary in place. Nil text or metadata leaves
// that column untouched. Iterative refinement uses this so evaluation
// rows referencing the summary survive.
func (s *Store) UpdateSummary(id string, text *string, meta *types.SummaryMetadata) error {
	const op = "store.UpdateSummary"
	s.mu.Lock()
	defer s.mu.Unlock()

	query := "UPDATE generated_summaries SET"
	args := []any{}
	if text != nil {
		query += " summary_text = ?"
		args = append(args, *text)
	}
	if meta != nil {
		blob, err := marshalBlob(op, meta)
		if err != nil {
			return err
		}
		if text != nil {
			query += ","
		}
		query += " metadata = ?"
		args = append(args, blob)
	}
	if len(args) == 0 {
		return nil
	}
	query += " WHERE id = ?"
	args = append(args, id)

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return errs.E(errs.KindStorage, op, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.KindStorage, op, "summary not found: %s", id)
	}
	return nil
}

// GetSummaries returns a run's summaries ordered by (code_unit_id,
// model_id), optionally filtered to one model. The ordering is what the
// retrieval index builds from, so it must be stable.
func (s *Store) GetSummaries(runID, modelID string) ([]*types.GeneratedSummary, error) {
	const op = "store.GetSummaries"
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, run_id, code_unit_id, model_id, summary_text, metadata
		FROM generated_summaries WHERE run_id = ?`
	args := []any{runID}
	if modelID != "" {
		query += " AND model_id = ?"
		args = append(args, modelID)
	}
	query += " ORDER BY code_unit_id, model_id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	defer rows.Close()

	var summaries []*types.GeneratedSummary
	for rows.Next() {
		sum, err := scanSummary(op, rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	return summaries, nil
}

// GetSummary fetches one summary by id.
func (s *Store) GetSummary(id string) (*types.GeneratedSummary, error) {
	const op = "store.GetSummary"
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, run_id, code_unit_id, model_id, summary_text, metadata
		FROM generated_summaries WHERE id = ?`, id)
	sum, err := scanSummary(op, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.KindStorage, op, "summary not found: %s", id)
	}
	return sum, err
}

func scanSummary(op string, row scannable) (*types.GeneratedSummary, error) {
	var (
		sum  types.GeneratedSummary
		meta string
	)
	err := row.Scan(&sum.ID, &sum.RunID, &sum.CodeUnitID, &sum.ModelID, &sum.Text, &meta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errs.E(errs.KindStorage, op, err)
	}
	if err := unmarshalRow(op, sum.ID, meta, &sum.Metadata); err != nil {
		return nil, err
	}
	return &sum, nil
}
