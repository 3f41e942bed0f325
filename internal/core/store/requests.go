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

const requestColumns = `id, address, amount, source_ip, user_agent, status,
	transaction_hash, error_message, attempts, created_at, queued_at,
	next_attempt_at, completed_at`

// CreateRequest inserts a freshly validated disbursement request.
func (s *Store) CreateRequest(ctx context.Context, req *core.DisbursementRequest) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil || strings.TrimSpace(req.ID) == "" {
		return errors.New("request id is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO requests (id, address, amount, source_ip, user_agent, status,
			attempts, created_at, queued_at, next_attempt_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, req.ID, req.Address, req.Amount, req.SourceIP, req.UserAgent,
		string(req.Status), req.Attempts, req.CreatedAt.UTC().Unix(),
		req.QueuedAt.UTC().Unix(), req.NextAttemptAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("store request: %w", err)
	}

	return nil
}

// GetRequest returns a request by id, or nil when it does not exist.
func (s *Store) GetRequest(ctx context.Context, id string) (*core.DisbursementRequest, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("request id is required")
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM requests WHERE id = ?
	`, requestColumns), id)

	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch request: %w", err)
	}
	return req, nil
}

// LatestCompletion returns the completion time of the most recent completed
// disbursement for an address. A nil result means no cooldown applies.
func (s *Store) LatestCompletion(ctx context.Context, address string) (*time.Time, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var completedAt sql.NullInt64
	row := s.DB.QueryRowContext(ctx, `
		SELECT completed_at FROM requests
		WHERE address = ? AND status = ?
		ORDER BY completed_at DESC
		LIMIT 1
	`, address, string(core.StatusCompleted))

	if err := row.Scan(&completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch latest completion: %w", err)
	}
	if !completedAt.Valid {
		return nil, nil
	}

	value := time.Unix(completedAt.Int64, 0).UTC()
	return &value, nil
}

// HasActiveRequest reports whether an address already has a pending or
// processing request. At most one may be in flight per address.
func (s *Store) HasActiveRequest(ctx context.Context, address string) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var count int
	row := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM requests
		WHERE address = ? AND status IN (?, ?)
	`, address, string(core.StatusPending), string(core.StatusProcessing))
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("count active requests: %w", err)
	}
	return count > 0, nil
}

// SumCompletedSince totals the amounts disbursed since the given time.
func (s *Store) SumCompletedSince(ctx context.Context, since time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var total sql.NullInt64
	row := s.DB.QueryRowContext(ctx, `
		SELECT SUM(amount) FROM requests
		WHERE status = ? AND completed_at >= ?
	`, string(core.StatusCompleted), since.UTC().Unix())
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("sum completed amounts: %w", err)
	}
	return total.Int64, nil
}

// CountByIPSince counts requests of any status from a source IP since the
// given time. Failed and pending attempts still consume the IP budget.
func (s *Store) CountByIPSince(ctx context.Context, sourceIP string, since time.Time) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var count int
	row := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM requests
		WHERE source_ip = ? AND created_at >= ?
	`, sourceIP, since.UTC().Unix())
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count requests by ip: %w", err)
	}
	return count, nil
}

// NextQueued returns the head of the queue: the oldest pending request whose
// backoff has elapsed, or nil when the queue is empty.
func (s *Store) NextQueued(ctx context.Context, now time.Time) (*core.DisbursementRequest, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM requests
		WHERE status = ? AND next_attempt_at <= ?
		ORDER BY queued_at ASC
		LIMIT 1
	`, requestColumns), string(core.StatusPending), now.UTC().Unix())

	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch queue head: %w", err)
	}
	return req, nil
}

// MarkProcessing transitions a request into the in-flight state.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	return s.updateStatus(ctx, `
		UPDATE requests SET status = ? WHERE id = ?
	`, string(core.StatusProcessing), id)
}

// MarkCompleted records a successful submission with its transaction hash.
func (s *Store) MarkCompleted(ctx context.Context, id, txHash string, completedAt time.Time) error {
	return s.updateStatus(ctx, `
		UPDATE requests SET status = ?, transaction_hash = ?, error_message = NULL, completed_at = ?
		WHERE id = ?
	`, string(core.StatusCompleted), txHash, completedAt.UTC().Unix(), id)
}

// MarkFailed records a terminal failure once retries are exhausted.
func (s *Store) MarkFailed(ctx context.Context, id string, attempts int, errMsg string) error {
	return s.updateStatus(ctx, `
		UPDATE requests SET status = ?, attempts = ?, error_message = ?
		WHERE id = ?
	`, string(core.StatusFailed), attempts, errMsg, id)
}

// Requeue re-appends a failed attempt to the tail of the queue with its
// backoff deadline. Retried items lose their original position so a failing
// item cannot starve fresher requests.
func (s *Store) Requeue(ctx context.Context, id string, attempts int, errMsg string, queuedAt, nextAttemptAt time.Time) error {
	return s.updateStatus(ctx, `
		UPDATE requests SET status = ?, attempts = ?, error_message = ?, queued_at = ?, next_attempt_at = ?
		WHERE id = ?
	`, string(core.StatusPending), attempts, errMsg, queuedAt.UTC().Unix(), nextAttemptAt.UTC().Unix(), id)
}

// RecoverStale demotes rows left processing by a crash back to pending so
// they are picked up after restart.
func (s *Store) RecoverStale(ctx context.Context) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `
		UPDATE requests SET status = ? WHERE status = ?
	`, string(core.StatusPending), string(core.StatusProcessing))
	if err != nil {
		return 0, fmt.Errorf("recover stale requests: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recover stale requests: %w", err)
	}
	return affected, nil
}

// DeleteRequest removes a request row. Requests are never deleted except by
// admin action.
func (s *Store) DeleteRequest(ctx context.Context, id string) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return 0, errors.New("request id is required")
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM requests WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete request: %w", err)
	}
	return affected, nil
}

// RequestQuery filters request listings for the admin surface.
type RequestQuery struct {
	Status core.RequestStatus
	Limit  int
}

// ListRequests returns requests newest first, optionally filtered by status.
func (s *Store) ListRequests(ctx context.Context, q RequestQuery) ([]core.DisbursementRequest, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where := ""
	args := []any{}
	if q.Status != "" {
		where = "WHERE status = ?"
		args = append(args, string(q.Status))
	}

	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM requests
		%s
		ORDER BY created_at DESC
		LIMIT ?
	`, requestColumns, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	requests := []core.DisbursementRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan requests: %w", err)
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}

	return requests, nil
}

// Stats aggregates disbursement totals for /api/stats.
func (s *Store) Stats(ctx context.Context, now time.Time) (*core.FaucetStats, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	dayAgo := now.Add(-24 * time.Hour).UTC().Unix()
	stats := &core.FaucetStats{}

	row := s.DB.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN status = 'completed' THEN 1 END),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN amount END), 0),
			COUNT(CASE WHEN status = 'failed' THEN 1 END),
			COUNT(CASE WHEN status = 'pending' THEN 1 END),
			COUNT(CASE WHEN status = 'completed' AND completed_at >= ? THEN 1 END),
			COALESCE(SUM(CASE WHEN status = 'completed' AND completed_at >= ? THEN amount END), 0),
			COUNT(CASE WHEN created_at >= ? THEN 1 END)
		FROM requests
	`, dayAgo, dayAgo, dayAgo)

	if err := row.Scan(&stats.CompletedTotal, &stats.DisbursedTotal,
		&stats.FailedTotal, &stats.PendingDepth, &stats.Completed24h,
		&stats.Disbursed24h, &stats.RequestsPast24h); err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}

	return stats, nil
}

// PendingDepth returns the number of queued requests; used for metrics.
func (s *Store) PendingDepth(ctx context.Context) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var depth int64
	row := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM requests WHERE status = ?
	`, string(core.StatusPending))
	if err := row.Scan(&depth); err != nil {
		return 0, fmt.Errorf("count pending requests: %w", err)
	}
	return depth, nil
}

func (s *Store) updateStatus(ctx context.Context, query string, args ...any) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*core.DisbursementRequest, error) {
	var (
		req           core.DisbursementRequest
		userAgent     sql.NullString
		status        string
		txHash        sql.NullString
		errMsg        sql.NullString
		createdAt     int64
		queuedAt      int64
		nextAttemptAt int64
		completedAt   sql.NullInt64
	)

	if err := row.Scan(&req.ID, &req.Address, &req.Amount, &req.SourceIP,
		&userAgent, &status, &txHash, &errMsg, &req.Attempts,
		&createdAt, &queuedAt, &nextAttemptAt, &completedAt); err != nil {
		return nil, err
	}

	req.UserAgent = userAgent.String
	req.Status = core.RequestStatus(status)
	req.TransactionHash = txHash.String
	req.ErrorMessage = errMsg.String
	req.CreatedAt = time.Unix(createdAt, 0).UTC()
	req.QueuedAt = time.Unix(queuedAt, 0).UTC()
	req.NextAttemptAt = time.Unix(nextAttemptAt, 0).UTC()
	if completedAt.Valid {
		value := time.Unix(completedAt.Int64, 0).UTC()
		req.CompletedAt = &value
	}

	return &req, nil
}
