// Package audit provides an optional Postgres-backed record of session
// and exchange activity, sitting alongside the file-based tape store.
// Tapes themselves always stay on disk; this is an enrichment layer
// over the registry, never where tapes live.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps a *sql.DB opened against the pgx driver, with the audit
// schema already migrated.
type DB struct {
	*sql.DB
}

// Open connects to databaseURL and ensures the audit schema exists.
func Open(databaseURL string) (*DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("CONTROLTAPE_DATABASE_URL is required")
	}

	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{sqlDB}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			command TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT 'live',
			started_at TIMESTAMPTZ DEFAULT NOW(),
			closed_at TIMESTAMPTZ,
			exit_code INTEGER,
			signal INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS exchanges (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			input_kind TEXT NOT NULL,
			input_bytes INTEGER NOT NULL,
			output_bytes INTEGER NOT NULL,
			tape_path TEXT,
			miss BOOLEAN NOT NULL DEFAULT FALSE,
			recorded_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at)`,
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %s: %w", m[:40], err)
		}
	}
	return nil
}

// RecordSessionStart inserts a row for a newly constructed session.
func (db *DB) RecordSessionStart(ctx context.Context, id, command, mode string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (id, command, mode) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`, id, command, mode)
	return err
}

// RecordSessionEnd updates a session's closed_at/exit_code/signal.
func (db *DB) RecordSessionEnd(ctx context.Context, id string, closedAt time.Time, exitCode, signal *int) error {
	_, err := db.ExecContext(ctx,
		`UPDATE sessions SET closed_at = $2, exit_code = $3, signal = $4 WHERE id = $1`,
		id, closedAt, exitCode, signal)
	return err
}

// RecordExchange inserts one send/response exchange for a session.
func (db *DB) RecordExchange(ctx context.Context, sessionID string, seq int, inputKind string, inputBytes, outputBytes int, tapePath string, miss bool) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO exchanges (session_id, seq, input_kind, input_bytes, output_bytes, tape_path, miss)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sessionID, seq, inputKind, inputBytes, outputBytes, nullableString(tapePath), miss)
	return err
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
