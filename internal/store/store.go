// Package store persists every entity of a benchmark run in a single
// SQLite database: runs, code units, summaries, evaluation results,
// pairwise comparisons, distractor sets, queries, phase progress,
// aggregated scores, and the embedding cache. All structured payloads
// are JSON in TEXT columns; embeddings are little-endian float32 BLOBs.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sumbench/internal/errs"
	"sumbench/internal/logging"
)

// Store wraps the SQLite handle. A single connection plus a store-level
// RWMutex keeps reads consistent snapshots and makes :memory: databases
// behave under the connection pool.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	const op = "store.Open"

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errs.E(errs.KindStorage, op, fmt.Errorf("create directory: %w", err))
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, errs.E(errs.KindStorage, op, fmt.Errorf("open database: %w", err))
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("Opened database: %s (driver=%s)", path, driverName)
	return s, nil
}

// initialize applies the pragmas and creates the required tables.
func (s *Store) initialize() error {
	const op = "store.initialize"

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return errs.E(errs.KindStorage, op, fmt.Errorf("%s: %w", p, err))
		}
	}

	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		config TEXT NOT NULL DEFAULT '{}',
		codebase_info TEXT,
		status TEXT NOT NULL,
		current_phase TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT,
		completed_at TEXT,
		paused_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`

	unitsTable := `
	CREATE TABLE IF NOT EXISTS code_units (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		name TEXT NOT NULL,
		unit_type TEXT NOT NULL,
		language TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		relationships TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_units_run ON code_units(run_id);
	CREATE INDEX IF NOT EXISTS idx_units_type ON code_units(unit_type);
	CREATE INDEX IF NOT EXISTS idx_units_language ON code_units(language);
	CREATE INDEX IF NOT EXISTS idx_units_path ON code_units(path);
	`

	summariesTable := `
	CREATE TABLE IF NOT EXISTS generated_summaries (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		code_unit_id TEXT NOT NULL REFERENCES code_units(id) ON DELETE CASCADE,
		model_id TEXT NOT NULL,
		summary_text TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		UNIQUE(run_id, code_unit_id, model_id)
	);
	CREATE INDEX IF NOT EXISTS idx_summaries_run_model ON generated_summaries(run_id, model_id);
	`

	resultsTable := `
	CREATE TABLE IF NOT EXISTS evaluation_results (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		summary_id TEXT NOT NULL REFERENCES generated_summaries(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		evaluated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_results_run ON evaluation_results(run_id);
	CREATE INDEX IF NOT EXISTS idx_results_summary ON evaluation_results(summary_id);
	CREATE INDEX IF NOT EXISTS idx_results_kind ON evaluation_results(run_id, kind);
	`

	pairwiseTable := `
	CREATE TABLE IF NOT EXISTS pairwise_results (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		model_a TEXT NOT NULL,
		model_b TEXT NOT NULL,
		code_unit_id TEXT NOT NULL REFERENCES code_units(id) ON DELETE CASCADE,
		judge_model TEXT NOT NULL,
		winner TEXT NOT NULL,
		confidence TEXT NOT NULL DEFAULT '',
		position_swapped INTEGER NOT NULL DEFAULT 0,
		reasoning TEXT NOT NULL DEFAULT '',
		criteria TEXT,
		cost REAL NOT NULL DEFAULT 0,
		UNIQUE(run_id, code_unit_id, model_a, model_b, judge_model, position_swapped)
	);
	CREATE INDEX IF NOT EXISTS idx_pairwise_run ON pairwise_results(run_id);
	`

	queriesTable := `
	CREATE TABLE IF NOT EXISTS generated_queries (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		code_unit_id TEXT NOT NULL REFERENCES code_units(id) ON DELETE CASCADE,
		query_type TEXT NOT NULL,
		query_text TEXT NOT NULL,
		should_find INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_queries_run ON generated_queries(run_id);
	`

	distractorsTable := `
	CREATE TABLE IF NOT EXISTS distractor_sets (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		target_code_unit_id TEXT NOT NULL REFERENCES code_units(id) ON DELETE CASCADE,
		distractor_ids TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		UNIQUE(run_id, target_code_unit_id)
	);
	`

	progressTable := `
	CREATE TABLE IF NOT EXISTS phase_progress (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		phase TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		items_total INTEGER NOT NULL DEFAULT 0,
		items_completed INTEGER NOT NULL DEFAULT 0,
		last_processed_id TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, phase)
	);
	`

	scoresTable := `
	CREATE TABLE IF NOT EXISTS aggregated_scores (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		model_id TEXT NOT NULL,
		scores TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (run_id, model_id)
	);
	`

	cacheTable := `
	CREATE TABLE IF NOT EXISTS embedding_cache (
		content_hash TEXT PRIMARY KEY,
		model_id TEXT NOT NULL,
		dims INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cache_model ON embedding_cache(model_id);
	`

	tables := []string{
		runsTable, unitsTable, summariesTable, resultsTable, pairwiseTable,
		queriesTable, distractorsTable, progressTable, scoresTable, cacheTable,
	}
	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return errs.E(errs.KindStorage, op, fmt.Errorf("create table: %w", err))
		}
	}

	return nil
}

// Path returns the database file path (":memory:" for ephemeral stores).
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Transaction runs fn inside BEGIN/COMMIT, rolling back on error.
func (s *Store) Transaction(fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transact("store.Transaction", fn)
}

// transact assumes the caller already holds the write lock.
func (s *Store) transact(op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errs.E(errs.KindStorage, op, fmt.Errorf("begin: %w", err))
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.StoreError("%s: rollback failed after %v: %v", op, err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.E(errs.KindStorage, op, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// timeLayout is how timestamps are stored. RFC3339Nano round-trips
// time.Time values without losing precision.
const timeLayout = time.RFC3339Nano

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(op, rowID, s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, errs.CorruptedRow(op, rowID, err)
	}
	return t, nil
}

func fmtNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func scanNullTime(op, rowID string, ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(op, rowID, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func marshalBlob(op string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", errs.E(errs.KindStorage, op, fmt.Errorf("marshal: %w", err))
	}
	return string(b), nil
}

// unmarshalRow decodes a JSON TEXT column. A row that no longer decodes
// is surfaced as corrupted data with its id; it is never skipped.
func unmarshalRow(op, rowID string, data string, v any) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return errs.CorruptedRow(op, rowID, err)
	}
	return nil
}
