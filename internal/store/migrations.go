package store

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"sumbench/internal/errs"
	"sumbench/internal/logging"
)

// Schema versions:
// v1: core run/unit/summary/result tables
// v2: embedding_cache table and pairwise cost column
const CurrentSchemaVersion = 2

// Migration adds a column that older databases are missing.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists column additions for databases created before
// the column joined the base schema. Fresh databases skip all of them.
var pendingMigrations = []Migration{
	{"runs", "paused_at", "TEXT"},
	{"pairwise_results", "cost", "REAL NOT NULL DEFAULT 0"},
	{"phase_progress", "last_processed_id", "TEXT NOT NULL DEFAULT ''"},
}

// RunMigrations brings an existing database up to the current schema.
// Every step is idempotent.
func RunMigrations(db *sql.DB) error {
	const op = "store.RunMigrations"

	applied := 0
	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			continue
		}
		if columnExists(db, m.Table, m.Column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(query); err != nil {
			return errs.E(errs.KindStorage, op, fmt.Errorf("add %s.%s: %w", m.Table, m.Column, err))
		}
		logging.Store("Migration applied: added %s.%s", m.Table, m.Column)
		applied++
	}

	if GetSchemaVersion(db) < CurrentSchemaVersion {
		if err := SetSchemaVersion(db, CurrentSchemaVersion); err != nil {
			return err
		}
	}
	if applied > 0 {
		logging.Store("Schema migrations complete: applied=%d", applied)
	}
	return nil
}

// columnExists probes a table for a column via PRAGMA table_info.
func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

// tableExists checks sqlite_master for a table.
func tableExists(db *sql.DB, table string) bool {
	var count int
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	if err := db.QueryRow(query, table).Scan(&count); err != nil {
		return false
	}
	return count > 0
}

// GetSchemaVersion returns the recorded schema version, or 0 for a
// database without version bookkeeping.
func GetSchemaVersion(db *sql.DB) int {
	if !tableExists(db, "schema_versions") {
		return 0
	}
	var version int
	query := "SELECT version FROM schema_versions ORDER BY version DESC LIMIT 1"
	if err := db.QueryRow(query).Scan(&version); err != nil {
		return 0
	}
	return version
}

// SetSchemaVersion records a new schema version.
func SetSchemaVersion(db *sql.DB, version int) error {
	const op = "store.SetSchemaVersion"

	createTable := `
	CREATE TABLE IF NOT EXISTS schema_versions (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`
	if _, err := db.Exec(createTable); err != nil {
		return errs.E(errs.KindStorage, op, err)
	}
	_, err := db.Exec(
		"INSERT OR REPLACE INTO schema_versions (version, applied_at) VALUES (?, ?)",
		version, fmtTime(time.Now()),
	)
	if err != nil {
		return errs.E(errs.KindStorage, op, err)
	}
	return nil
}

// CreateBackup copies the database file next to itself with a timestamp
// suffix and returns the backup path.
func CreateBackup(dbPath string) (string, error) {
	const op = "store.CreateBackup"

	timestamp := time.Now().Format("20060102_150405")
	backupPath := fmt.Sprintf("%s.backup_%s", dbPath, timestamp)

	src, err := os.Open(dbPath)
	if err != nil {
		return "", errs.E(errs.KindStorage, op, fmt.Errorf("open source: %w", err))
	}
	defer src.Close()

	dst, err := os.Create(backupPath)
	if err != nil {
		return "", errs.E(errs.KindStorage, op, fmt.Errorf("create backup: %w", err))
	}
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		return "", errs.E(errs.KindStorage, op, fmt.Errorf("copy: %w", err))
	}
	if err := dst.Sync(); err != nil {
		return "", errs.E(errs.KindStorage, op, fmt.Errorf("sync: %w", err))
	}

	logging.Store("Database backup created: %s (%d bytes)", backupPath, n)
	return backupPath, nil
}
