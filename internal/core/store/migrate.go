package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		amount INTEGER NOT NULL,
		source_ip TEXT NOT NULL,
		user_agent TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		transaction_hash TEXT,
		error_message TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		queued_at INTEGER NOT NULL,
		next_attempt_at INTEGER NOT NULL,
		completed_at INTEGER
	);`,
	`CREATE INDEX IF NOT EXISTS idx_requests_address_status ON requests(address, status);`,
	`CREATE INDEX IF NOT EXISTS idx_requests_queue ON requests(status, queued_at);`,
	`CREATE INDEX IF NOT EXISTS idx_requests_source_ip ON requests(source_ip, created_at);`,
	`CREATE TABLE IF NOT EXISTS rate_hits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL,
		source_ip TEXT,
		hit_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_rate_hits_key ON rate_hits(key, hit_at);`,
	`CREATE TABLE IF NOT EXISTS rate_blocks (
		key TEXT PRIMARY KEY,
		block_until INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS blacklist (
		address TEXT PRIMARY KEY,
		reason TEXT,
		created_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	if err := s.ensureColumn(ctx, "requests", "user_agent", "TEXT"); err != nil {
		return err
	}

	return nil
}

func (s *Store) ensureColumn(ctx context.Context, table, column, columnDef string) error {
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspect %s schema: %w", table, err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("inspect %s columns: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s columns: %w", table, err)
	}

	if _, err := s.DB.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, columnDef)); err != nil {
		return fmt.Errorf("add %s.%s column: %w", table, column, err)
	}

	return nil
}
