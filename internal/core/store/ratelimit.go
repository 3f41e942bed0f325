package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigot/spigot/internal/core"
)

// PurgeHits removes hits for a key older than the window cutoff.
func (s *Store) PurgeHits(ctx context.Context, key string, cutoff time.Time) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("rate key is required")
	}

	if _, err := s.DB.ExecContext(ctx, `
		DELETE FROM rate_hits WHERE key = ? AND hit_at < ?
	`, key, cutoff.UTC().Unix()); err != nil {
		return fmt.Errorf("purge rate hits: %w", err)
	}
	return nil
}

// CountHits returns the number of hits for a key at or after the cutoff.
func (s *Store) CountHits(ctx context.Context, key string, cutoff time.Time) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var count int
	row := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM rate_hits WHERE key = ? AND hit_at >= ?
	`, key, cutoff.UTC().Unix())
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count rate hits: %w", err)
	}
	return count, nil
}

// RecordHit appends a hit for a key.
func (s *Store) RecordHit(ctx context.Context, key, sourceIP string, at time.Time) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("rate key is required")
	}

	if _, err := s.DB.ExecContext(ctx, `
		INSERT INTO rate_hits (key, source_ip, hit_at) VALUES (?, ?, ?)
	`, key, sourceIP, at.UTC().Unix()); err != nil {
		return fmt.Errorf("record rate hit: %w", err)
	}
	return nil
}

// GetBlock returns the block for a key, or nil when none exists. Expired
// blocks are returned as-is; the limiter decides whether they still apply.
func (s *Store) GetBlock(ctx context.Context, key string) (*core.RateBlock, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var blockUntil int64
	row := s.DB.QueryRowContext(ctx, `
		SELECT block_until FROM rate_blocks WHERE key = ?
	`, key)
	if err := row.Scan(&blockUntil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch rate block: %w", err)
	}

	return &core.RateBlock{
		Key:        key,
		BlockUntil: time.Unix(blockUntil, 0).UTC(),
	}, nil
}

// SetBlock creates or replaces the block for a key.
func (s *Store) SetBlock(ctx context.Context, key string, blockUntil time.Time) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("rate key is required")
	}

	if _, err := s.DB.ExecContext(ctx, `
		INSERT INTO rate_blocks (key, block_until)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			block_until = excluded.block_until
	`, key, blockUntil.UTC().Unix()); err != nil {
		return fmt.Errorf("store rate block: %w", err)
	}
	return nil
}

// ResetRateState clears hits and blocks, either for one key prefix or
// entirely. Exposed to the admin CLI.
func (s *Store) ResetRateState(ctx context.Context, prefix string) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	hitsQuery, blocksQuery := `DELETE FROM rate_hits`, `DELETE FROM rate_blocks`
	args := []any{}
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		hitsQuery += ` WHERE key LIKE ?`
		blocksQuery += ` WHERE key LIKE ?`
		args = append(args, prefix+"%")
	}

	result, err := s.DB.ExecContext(ctx, hitsQuery, args...)
	if err != nil {
		return 0, fmt.Errorf("reset rate hits: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset rate hits: %w", err)
	}

	if _, err := s.DB.ExecContext(ctx, blocksQuery, args...); err != nil {
		return 0, fmt.Errorf("reset rate blocks: %w", err)
	}

	return affected, nil
}
