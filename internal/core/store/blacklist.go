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

// IsBlacklisted reports whether an address is vetoed.
func (s *Store) IsBlacklisted(ctx context.Context, address string) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var count int
	row := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM blacklist WHERE address = ?
	`, address)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return count > 0, nil
}

// AddBlacklistEntry vetoes an address, updating the reason if already present.
func (s *Store) AddBlacklistEntry(ctx context.Context, address, reason string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	address = strings.TrimSpace(address)
	if address == "" {
		return errors.New("address is required")
	}

	if _, err := s.DB.ExecContext(ctx, `
		INSERT INTO blacklist (address, reason, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			reason = excluded.reason
	`, address, reason, time.Now().UTC().Unix()); err != nil {
		return fmt.Errorf("store blacklist entry: %w", err)
	}
	return nil
}

// RemoveBlacklistEntry lifts the veto on an address.
func (s *Store) RemoveBlacklistEntry(ctx context.Context, address string) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	address = strings.TrimSpace(address)
	if address == "" {
		return 0, errors.New("address is required")
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM blacklist WHERE address = ?`, address)
	if err != nil {
		return 0, fmt.Errorf("remove blacklist entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("remove blacklist entry: %w", err)
	}
	return affected, nil
}

// ListBlacklist returns all vetoed addresses ordered by address.
func (s *Store) ListBlacklist(ctx context.Context) ([]core.BlacklistEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT address, reason, created_at FROM blacklist ORDER BY address
	`)
	if err != nil {
		return nil, fmt.Errorf("list blacklist: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []core.BlacklistEntry{}
	for rows.Next() {
		var (
			entry     core.BlacklistEntry
			reason    sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&entry.Address, &reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scan blacklist: %w", err)
		}
		entry.Reason = reason.String
		entry.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list blacklist: %w", err)
	}

	return entries, nil
}
