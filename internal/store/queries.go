package store

import (
	"database/sql"

	"sumbench/internal/errs"
	"sumbench/internal/logging"
	"sumbench/internal/types"
)

// InsertQueries writes a batch of retrieval probes in one transaction.
func (s *Store) InsertQueries(queries []*types.GeneratedQuery) error {
	const op = "store.InsertQueries"
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.transact(op, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO generated_queries (id, run_id, code_unit_id, query_type, query_text, should_find)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return errs.E(errs.KindStorage, op, err)
		}
		defer stmt.Close()

		for _, q := range queries {
			if _, err := stmt.Exec(q.ID, q.RunID, q.CodeUnitID, q.Type, q.Text,
				boolToInt(q.ShouldFind)); err != nil {
				return errs.E(errs.KindStorage, op, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logging.Store("Inserted %d queries", len(queries))
	return nil
}

// GetQueries returns a run's retrieval probes ordered by id.
func (s *Store) GetQueries(runID string) ([]*types.GeneratedQuery, error) {
	const op = "store.GetQueries"
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, run_id, code_unit_id, query_type, query_text, should_find
		FROM generated_queries WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	defer rows.Close()

	var queries []*types.GeneratedQuery
	for rows.Next() {
		var (
			q          types.GeneratedQuery
			shouldFind int
		)
		if err := rows.Scan(&q.ID, &q.RunID, &q.CodeUnitID, &q.Type, &q.Text, &shouldFind); err != nil {
			return nil, errs.E(errs.KindStorage, op, err)
		}
		q.ShouldFind = shouldFind != 0
		queries = append(queries, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	return queries, nil
}
