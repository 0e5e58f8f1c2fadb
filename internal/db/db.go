package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB with kpiscribe-specific helpers.
type DB struct {
	*sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenMemory creates an in-memory SQLite database (useful for testing).
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}

	d := &DB{DB: sqlDB, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// migrate runs all schema migrations.
func (d *DB) migrate() error {
	_, err := d.Exec(schema)
	return err
}

// schema contains the full database schema. New tables are added here.
const schema = `
CREATE TABLE IF NOT EXISTS kpi_facts (
    period_key TEXT NOT NULL,
    kpi_name TEXT NOT NULL,
    kind TEXT NOT NULL CHECK(kind IN ('int','float','text')),
    value TEXT NOT NULL,
    loaded_at DATETIME NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY(period_key, kpi_name)
);

CREATE INDEX IF NOT EXISTS idx_kpi_facts_period ON kpi_facts(period_key);

CREATE TABLE IF NOT EXISTS narratives (
    analysis_period TEXT PRIMARY KEY,
    narrative TEXT NOT NULL,
    generated_at DATETIME NOT NULL,
    model TEXT NOT NULL DEFAULT '',
    temperature REAL NOT NULL DEFAULT 0,
    max_output_tokens INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS narrative_runs (
    id TEXT PRIMARY KEY,
    analysis_period TEXT NOT NULL,
    state TEXT NOT NULL CHECK(state IN ('pending','in_flight','retrying','succeeded','failed')),
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    estimated_cost_usd REAL NOT NULL DEFAULT 0,
    started_at DATETIME NOT NULL,
    finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_period ON narrative_runs(analysis_period, started_at);
CREATE INDEX IF NOT EXISTS idx_runs_state ON narrative_runs(state);
`
