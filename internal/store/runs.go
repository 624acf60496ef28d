package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sumbench/internal/errs"
	"sumbench/internal/logging"
	"sumbench/internal/types"
)

// CreateRun inserts a new run. A missing id is assigned; created/updated
// timestamps are set here.
func (s *Store) CreateRun(run *types.Run) error {
	const op = "store.CreateRun"
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = types.StatusPending
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	config := "{}"
	if len(run.Config) > 0 {
		config = string(run.Config)
	}
	var info any
	if run.CodebaseInfo != nil {
		blob, err := marshalBlob(op, run.CodebaseInfo)
		if err != nil {
			return err
		}
		info = blob
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (id, name, description, config, codebase_info, status,
			current_phase, error, started_at, completed_at, paused_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.Description, config, info, string(run.Status),
		string(run.CurrentPhase), run.Error,
		fmtNullTime(run.StartedAt), fmtNullTime(run.CompletedAt), fmtNullTime(run.PausedAt),
		fmtTime(run.CreatedAt), fmtTime(run.UpdatedAt))
	if err != nil {
		return errs.E(errs.KindStorage, op, err)
	}

	logging.Store("Created run %s (%s)", run.ID, run.Name)
	return nil
}

// GetRun fetches one run by id.
func (s *Store) GetRun(id string) (*types.Run, error) {
	const op = "store.GetRun"
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, name, description, config, codebase_info, status,
			current_phase, error, started_at, completed_at, paused_at, created_at, updated_at
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(op, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.KindStorage, op, "run not found: %s", id)
	}
	return run, err
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *Store) ListRuns(status types.RunStatus) ([]*types.Run, error) {
	const op = "store.ListRuns"
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, name, description, config, codebase_info, status,
			current_phase, error, started_at, completed_at, paused_at, created_at, updated_at
		FROM runs`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	defer rows.Close()

	var runs []*types.Run
	for rows.Next() {
		run, err := scanRun(op, rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	return runs, nil
}

// SetRunCodebaseInfo records what extraction found about the project.
func (s *Store) SetRunCodebaseInfo(id string, info *types.CodebaseInfo) error {
	const op = "store.SetRunCodebaseInfo"
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := marshalBlob(op, info)
	if err != nil {
		return err
	}
	res, err := s.db.Exec("UPDATE runs SET codebase_info = ?, updated_at = ? WHERE id = ?",
		blob, fmtTime(time.Now()), id)
	if err != nil {
		return errs.E(errs.KindStorage, op, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.KindStorage, op, "run not found: %s", id)
	}
	return nil
}

// DeleteRun removes a run and, through the foreign keys, everything that
// hangs off it.
func (s *Store) DeleteRun(id string) error {
	const op = "store.DeleteRun"
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return errs.E(errs.KindStorage, op, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.KindStorage, op, "run not found: %s", id)
	}

	logging.Store("Deleted run %s (cascade)", id)
	return nil
}

// UpdateRunStatus moves a run to status, recording the current phase and
// error message. Lifecycle timestamps follow the status: running stamps
// started_at once, terminal states stamp completed_at, paused stamps
// paused_at and a later resume clears it.
func (s *Store) UpdateRunStatus(id string, status types.RunStatus, phase types.Phase, errMsg string) error {
	const op = "store.UpdateRunStatus"
	s.mu.Lock()
	defer s.mu.Unlock()

	now := fmtTime(time.Now())

	query := "UPDATE runs SET status = ?, current_phase = ?, error = ?, updated_at = ?"
	args := []any{string(status), string(phase), errMsg, now}

	switch status {
	case types.StatusRunning:
		query += ", started_at = COALESCE(started_at, ?), paused_at = NULL"
		args = append(args, now)
	case types.StatusCompleted, types.StatusFailed:
		query += ", completed_at = ?"
		args = append(args, now)
	case types.StatusPaused:
		query += ", paused_at = ?"
		args = append(args, now)
	}

	query += " WHERE id = ?"
	args = append(args, id)

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return errs.E(errs.KindStorage, op, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.KindStorage, op, "run not found: %s", id)
	}

	logging.Store("Run %s -> %s (phase=%s)", id, status, phase)
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(op string, row scannable) (*types.Run, error) {
	var (
		run                            types.Run
		config, status, phase          string
		info                           sql.NullString
		startedAt, completedAt, paused sql.NullString
		createdAt, updatedAt           string
	)
	err := row.Scan(&run.ID, &run.Name, &run.Description, &config, &info, &status,
		&phase, &run.Error, &startedAt, &completedAt, &paused, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errs.E(errs.KindStorage, op, fmt.Errorf("scan: %w", err))
	}

	run.Config = []byte(config)
	run.Status = types.RunStatus(status)
	run.CurrentPhase = types.Phase(phase)
	if info.Valid && info.String != "" {
		run.CodebaseInfo = &types.CodebaseInfo{}
		if err := unmarshalRow(op, run.ID, info.String, run.CodebaseInfo); err != nil {
			return nil, err
		}
	}
	if run.StartedAt, err = scanNullTime(op, run.ID, startedAt); err != nil {
		return nil, err
	}
	if run.CompletedAt, err = scanNullTime(op, run.ID, completedAt); err != nil {
		return nil, err
	}
	if run.PausedAt, err = scanNullTime(op, run.ID, paused); err != nil {
		return nil, err
	}
	if run.CreatedAt, err = parseTime(op, run.ID, createdAt); err != nil {
		return nil, err
	}
	if run.UpdatedAt, err = parseTime(op, run.ID, updatedAt); err != nil {
		return nil, err
	}
	return &run, nil
}
