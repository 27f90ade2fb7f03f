// Package db persists render history in Postgres.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type DB struct {
	*sql.DB
}

func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{conn}, nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS render_requests (
		correlation_id    TEXT PRIMARY KEY,
		status            TEXT NOT NULL,
		error_kind        TEXT,
		error_cause       TEXT,
		error_message     TEXT,
		scene_count       INTEGER NOT NULL,
		total_duration_ms INTEGER NOT NULL,
		response_mode     TEXT NOT NULL,
		video_url         TEXT,
		summary_id        TEXT,
		style_pack_id     TEXT,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		finished_at       TIMESTAMPTZ
	)
`

// EnsureSchema creates the render history table if it does not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
