package store

import (
	"database/sql"
	"errors"

	"sumbench/internal/errs"
	"sumbench/internal/logging"
	"sumbench/internal/types"
)

// InsertCodeUnits writes a batch of extracted units in one transaction.
func (s *Store) InsertCodeUnits(units []*types.CodeUnit) error {
	const op = "store.InsertCodeUnits"
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.transact(op, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO code_units (id, run_id, path, name, unit_type, language,
				content, metadata, relationships)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return errs.E(errs.KindStorage, op, err)
		}
		defer stmt.Close()

		for _, u := range units {
			meta, err := marshalBlob(op, u.Metadata)
			if err != nil {
				return err
			}
			rel, err := marshalBlob(op, u.Relationships)
			if err != nil {
				return err
			}
			if _, err := stmt.Exec(u.ID, u.RunID, u.Path, u.Name, string(u.Type),
				u.Language, u.Content, meta, rel); err != nil {
				return errs.E(errs.KindStorage, op, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logging.Store("Inserted %d code units", len(units))
	return nil
}

// GetCodeUnits returns every unit of a run ordered by id.
func (s *Store) GetCodeUnits(runID string) ([]*types.CodeUnit, error) {
	const op = "store.GetCodeUnits"
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, run_id, path, name, unit_type, language, content, metadata, relationships
		FROM code_units WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	defer rows.Close()

	var units []*types.CodeUnit
	for rows.Next() {
		u, err := scanUnit(op, rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	return units, nil
}

// GetCodeUnit fetches one unit by id.
func (s *Store) GetCodeUnit(id string) (*types.CodeUnit, error) {
	const op = "store.GetCodeUnit"
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, run_id, path, name, unit_type, language, content, metadata, relationships
		FROM code_units WHERE id = ?`, id)
	u, err := scanUnit(op, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.KindStorage, op, "code unit not found: %s", id)
	}
	return u, err
}

// CountCodeUnits returns how many units a run extracted.
func (s *Store) CountCodeUnits(runID string) (int, error) {
	const op = "store.CountCodeUnits"
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM code_units WHERE run_id = ?", runID).Scan(&count)
	if err != nil {
		return 0, errs.E(errs.KindStorage, op, err)
	}
	return count, nil
}

func scanUnit(op string, row scannable) (*types.CodeUnit, error) {
	var (
		u         types.CodeUnit
		unitType  string
		meta, rel string
	)
	err := row.Scan(&u.ID, &u.RunID, &u.Path, &u.Name, &unitType, &u.Language,
		&u.Content, &meta, &rel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errs.E(errs.KindStorage, op, err)
	}
	u.Type = types.UnitType(unitType)
	if err := unmarshalRow(op, u.ID, meta, &u.Metadata); err != nil {
		return nil, err
	}
	if err := unmarshalRow(op, u.ID, rel, &u.Relationships); err != nil {
		return nil, err
	}
	return &u, nil
}
