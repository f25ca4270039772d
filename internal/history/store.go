// Package history implements the local run-history store from spec §6:
// every JobResult/StepResult produced by a run is appended to a pure-Go
// SQLite database at <workspace>/.pdk/history.db, so `pdk list --history`
// can surface recent run health without depending on any external
// service. `pdk doctor` does not read it. Adapted from the teacher's run-record persister
// (internal/persistence/sqlite.go), scaled down from its scan/heal domain
// to this engine's job/step-result domain.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const currentSchemaVersion = 1

// Store is a workspace-scoped run-history database. The zero value is not
// usable; construct with Open.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath returns <workspaceRoot>/.pdk/history.db.
func DefaultPath(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, ".pdk", "history.db")
}

// Open creates (if necessary) and migrates the database at path, applying
// the same WAL-mode pragma set and single-connection pool sizing the
// teacher's persister uses for a short-lived CLI process.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("executing %s: %w", pragma, err)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	if err := secureDBFiles(path); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("securing history database: %w", err)
	}
	return store, nil
}

// Path returns the filesystem path the store was opened from.
func (s *Store) Path() string { return s.path }

// Close releases the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// secureDBFiles restricts the database file and its WAL/SHM siblings to
// owner read/write, matching the teacher's persister.
func secureDBFiles(dbPath string) error {
	if err := os.Chmod(dbPath, 0o600); err != nil {
		return fmt.Errorf("chmod %s: %w", dbPath, err)
	}
	for _, f := range []string{dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Chmod(f, 0o600); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("chmod %s: %w", f, err)
		}
	}
	return nil
}

func (s *Store) initSchema() error {
	const versionTable = `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	);`
	if _, err := s.db.Exec(versionTable); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("querying schema version: %w", err)
	}
	if version < currentSchemaVersion {
		return s.applyMigrations(version)
	}
	return nil
}

func (s *Store) applyMigrations(fromVersion int) error {
	migrations := []struct {
		version int
		name    string
		sql     string
	}{
		{
			version: 1,
			name:    "initial_schema",
			sql: `
			CREATE TABLE IF NOT EXISTS runs (
				run_id TEXT PRIMARY KEY,
				pipeline_file TEXT NOT NULL,
				pipeline_name TEXT,
				provider TEXT,
				runner_mode TEXT,
				success INTEGER NOT NULL,
				started_at INTEGER NOT NULL,
				completed_at INTEGER NOT NULL,
				duration_ms INTEGER NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_runs_pipeline_file ON runs(pipeline_file);
			CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);

			CREATE TABLE IF NOT EXISTS jobs (
				job_row_id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL,
				job_id TEXT NOT NULL,
				name TEXT,
				success INTEGER NOT NULL,
				skipped INTEGER NOT NULL DEFAULT 0,
				reason TEXT,
				error TEXT,
				duration_ms INTEGER NOT NULL,
				FOREIGN KEY (run_id) REFERENCES runs(run_id)
			);

			CREATE INDEX IF NOT EXISTS idx_jobs_run_id ON jobs(run_id);

			CREATE TABLE IF NOT EXISTS steps (
				step_row_id INTEGER PRIMARY KEY AUTOINCREMENT,
				job_row_id INTEGER NOT NULL,
				name TEXT,
				success INTEGER NOT NULL,
				skipped INTEGER NOT NULL DEFAULT 0,
				cancelled INTEGER NOT NULL DEFAULT 0,
				exit_code INTEGER NOT NULL DEFAULT 0,
				error TEXT,
				reason TEXT,
				duration_ms INTEGER NOT NULL,
				FOREIGN KEY (job_row_id) REFERENCES jobs(job_row_id)
			);

			CREATE INDEX IF NOT EXISTS idx_steps_job_row_id ON steps(job_row_id);
			`,
		},
	}

	for _, m := range migrations {
		if m.version <= fromVersion {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("applying migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)", m.version, time.Now().Unix()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", m.name, err)
		}
	}
	return nil
}
