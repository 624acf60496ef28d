package store

import (
	"time"

	"github.com/google/uuid"

	"sumbench/internal/errs"
	"sumbench/internal/types"
)

// InsertEvaluationResult writes one evaluator verdict. Results are
// written one at a time as items complete so a pause loses at most the
// in-flight item.
func (s *Store) InsertEvaluationResult(r *types.EvaluationResult) error {
	const op = "store.InsertEvaluationResult"
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.EvaluatedAt.IsZero() {
		r.EvaluatedAt = time.Now().UTC()
	}
	if !r.Kind.Valid() {
		return errs.New(errs.KindStorage, op, "unknown result kind: %s", r.Kind)
	}
	payload, err := r.MarshalPayload()
	if err != nil {
		return errs.E(errs.KindStorage, op, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO evaluation_results (id, run_id, summary_id, kind, payload, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.RunID, r.SummaryID, string(r.Kind), string(payload), fmtTime(r.EvaluatedAt))
	if err != nil {
		return errs.E(errs.KindStorage, op, err)
	}
	return nil
}

// GetEvaluationResults returns a run's results with payloads decoded
// into the slot their kind selects, optionally filtered by kind. A
// payload that fails to decode surfaces as corrupted data carrying the
// row id; rows are never silently skipped.
func (s *Store) GetEvaluationResults(runID string, kind types.ResultKind) ([]*types.EvaluationResult, error) {
	const op = "store.GetEvaluationResults"
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, run_id, summary_id, kind, payload, evaluated_at
		FROM evaluation_results WHERE run_id = ?`
	args := []any{runID}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY evaluated_at, id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	defer rows.Close()

	var results []*types.EvaluationResult
	for rows.Next() {
		var (
			r           types.EvaluationResult
			k, payload  string
			evaluatedAt string
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.SummaryID, &k, &payload, &evaluatedAt); err != nil {
			return nil, errs.E(errs.KindStorage, op, err)
		}
		r.Kind = types.ResultKind(k)
		if err := r.UnmarshalPayload([]byte(payload)); err != nil {
			return nil, errs.CorruptedRow(op, r.ID, err)
		}
		if r.EvaluatedAt, err = parseTime(op, r.ID, evaluatedAt); err != nil {
			return nil, err
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	return results, nil
}

// CountEvaluationResults returns how many results of one kind a run has.
func (s *Store) CountEvaluationResults(runID string, kind types.ResultKind) (int, error) {
	const op = "store.CountEvaluationResults"
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM evaluation_results WHERE run_id = ? AND kind = ?",
		runID, string(kind)).Scan(&count)
	if err != nil {
		return 0, errs.E(errs.KindStorage, op, err)
	}
	return count, nil
}
