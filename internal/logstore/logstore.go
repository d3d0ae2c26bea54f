// Package logstore mirrors warning-and-above log records into PostgreSQL
// so operators can inspect failures after the fact.
package logstore

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const (
	// Retention mirrors the old log-sheet housekeeping: once the table
	// grows past maxEntries, the oldest trimChunk entries are dropped.
	maxEntries = 1000
	trimChunk  = 100
)

// Store writes log records to the system_log table.
type Store struct {
	pool    *pgxpool.Pool
	version string
}

// New creates a log store using the given pool and initializes the schema.
func New(ctx context.Context, pool *pgxpool.Pool, version string) (*Store, error) {
	s := &Store{pool: pool, version: version}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("init log schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Write inserts one record and applies retention. Implements
// logging.Mirror.
func (s *Store) Write(ctx context.Context, ts time.Time, level, message, data string) error {
	// The mirror must never block a run for long, and a shutting-down
	// run must still be able to record its final error.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO system_log (logged_at, level, message, data, app_version)
		 VALUES ($1, $2, $3, $4, $5)`,
		ts, level, message, data, s.version,
	)
	if err != nil {
		return fmt.Errorf("insert log record: %w", err)
	}

	return s.trim(ctx)
}

// trim drops the oldest entries once the table exceeds maxEntries.
func (s *Store) trim(ctx context.Context) error {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM system_log`).Scan(&count); err != nil {
		return fmt.Errorf("count log records: %w", err)
	}
	if count <= maxEntries {
		return nil
	}

	_, err := s.pool.Exec(ctx,
		`DELETE FROM system_log WHERE id IN (
			SELECT id FROM system_log ORDER BY id ASC LIMIT $1
		)`, trimChunk)
	if err != nil {
		return fmt.Errorf("trim log records: %w", err)
	}
	return nil
}
