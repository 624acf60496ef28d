package store

import (
	"database/sql"
	"errors"
	"sort"
	"time"

	"sumbench/internal/errs"
	"sumbench/internal/logging"
	"sumbench/internal/types"
)

// StartPhase writes (or refreshes) the progress row for a phase. On a
// restart the existing cursor survives: items_completed and started_at
// are kept, only the total and the stale error are reset.
func (s *Store) StartPhase(runID string, phase types.Phase, total int) error {
	const op = "store.StartPhase"
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO phase_progress (run_id, phase, started_at, items_total, items_completed)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(run_id, phase) DO UPDATE SET
			items_total = excluded.items_total,
			error = ''`,
		runID, string(phase), fmtTime(time.Now()), total)
	if err != nil {
		return errs.E(errs.KindStorage, op, err)
	}

	logging.Store("Phase %s started for run %s (total=%d)", phase, runID, total)
	return nil
}

// UpdatePhaseProgress advances the durable cursor. items_completed never
// regresses: concurrent workers may report out of order, so the row
// keeps the high-water mark.
func (s *Store) UpdatePhaseProgress(runID string, phase types.Phase, completed int, lastProcessedID string) error {
	const op = "store.UpdatePhaseProgress"
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE phase_progress
		SET items_completed = MAX(items_completed, ?), last_processed_id = ?
		WHERE run_id = ? AND phase = ?`,
		completed, lastProcessedID, runID, string(phase))
	if err != nil {
		return errs.E(errs.KindStorage, op, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.KindStorage, op, "no progress row for run %s phase %s", runID, phase)
	}
	return nil
}

// CompletePhase stamps completed_at. A non-empty skipReason marks a
// phase that finished by skipping (for example a contrastive cohort too
// small to evaluate) and is recorded on the row.
func (s *Store) CompletePhase(runID string, phase types.Phase, skipReason string) error {
	const op = "store.CompletePhase"
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE phase_progress SET completed_at = ?, error = ?
		WHERE run_id = ? AND phase = ?`,
		fmtTime(time.Now()), skipReason, runID, string(phase))
	if err != nil {
		return errs.E(errs.KindStorage, op, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.KindStorage, op, "no progress row for run %s phase %s", runID, phase)
	}

	if skipReason != "" {
		logging.Store("Phase %s skipped for run %s: %s", phase, runID, skipReason)
	} else {
		logging.Store("Phase %s completed for run %s", phase, runID)
	}
	return nil
}

// GetPhaseProgress returns the progress row for one phase, or nil when
// the phase has never started.
func (s *Store) GetPhaseProgress(runID string, phase types.Phase) (*types.PhaseProgress, error) {
	const op = "store.GetPhaseProgress"
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT run_id, phase, started_at, completed_at, items_total, items_completed,
			last_processed_id, error
		FROM phase_progress WHERE run_id = ? AND phase = ?`, runID, string(phase))
	p, err := scanProgress(op, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// GetAllPhaseProgress returns every progress row of a run in phase
// dependency order.
func (s *Store) GetAllPhaseProgress(runID string) ([]*types.PhaseProgress, error) {
	const op = "store.GetAllPhaseProgress"
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT run_id, phase, started_at, completed_at, items_total, items_completed,
			last_processed_id, error
		FROM phase_progress WHERE run_id = ?`, runID)
	if err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	defer rows.Close()

	var progress []*types.PhaseProgress
	for rows.Next() {
		p, err := scanProgress(op, rows)
		if err != nil {
			return nil, err
		}
		progress = append(progress, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}

	sort.Slice(progress, func(i, j int) bool {
		return progress[i].Phase.Index() < progress[j].Phase.Index()
	})
	return progress, nil
}

func scanProgress(op string, row scannable) (*types.PhaseProgress, error) {
	var (
		p           types.PhaseProgress
		phase       string
		startedAt   string
		completedAt sql.NullString
	)
	err := row.Scan(&p.RunID, &phase, &startedAt, &completedAt, &p.Total,
		&p.Completed, &p.LastProcessedID, &p.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errs.E(errs.KindStorage, op, err)
	}
	p.Phase = types.Phase(phase)
	rowID := p.RunID + "/" + phase
	if p.StartedAt, err = parseTime(op, rowID, startedAt); err != nil {
		return nil, err
	}
	if p.CompletedAt, err = scanNullTime(op, rowID, completedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
