// Package sqlite implements the repository on an embedded SQLite database for
// single-user installs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout keeps a fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Open opens (and creates if missing) the SQLite database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: SQLite allows a single writer and :memory: databases are per connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the tables used by the repository.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			sort_order REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			activity_id TEXT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			sort_order REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			project_id TEXT NULL,
			title TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			progress TEXT NOT NULL DEFAULT 'Not started',
			rounds INTEGER NOT NULL DEFAULT 0 CHECK (rounds >= 0),
			goal INTEGER NOT NULL DEFAULT 0 CHECK (goal >= 0),
			goal_type TEXT NOT NULL DEFAULT 'Daily',
			sort_order REAL NOT NULL DEFAULT 0,
			detailed_notes TEXT NOT NULL DEFAULT '[]',
			time_entries TEXT NOT NULL DEFAULT '[]',
			activity_logs TEXT NOT NULL DEFAULT '[]',
			media TEXT NOT NULL DEFAULT '[]',
			completed_at TEXT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS round_records (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS pomodoro_sessions (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			task_id TEXT NULL,
			day TEXT NOT NULL,
			completed_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_projects_tenant_activity ON projects(tenant_id, activity_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_tenant_project ON tasks(tenant_id, project_id);`,
		`CREATE INDEX IF NOT EXISTS idx_round_records_task ON round_records(tenant_id, task_id, recorded_at);`,
		`CREATE INDEX IF NOT EXISTS idx_pomodoro_sessions_day ON pomodoro_sessions(tenant_id, day);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// withTx runs fn inside a SQL transaction.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

type scanner interface {
	Scan(dest ...any) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
