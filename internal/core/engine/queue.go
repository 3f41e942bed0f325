package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spigot/spigot/internal/core"
	"github.com/spigot/spigot/internal/metrics"
	"github.com/spigot/spigot/internal/observability"
)

// QueueStore persists the disbursement queue.
type QueueStore interface {
	NextQueued(ctx context.Context, now time.Time) (*core.DisbursementRequest, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id, txHash string, completedAt time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, errMsg string) error
	Requeue(ctx context.Context, id string, attempts int, errMsg string, queuedAt, nextAttemptAt time.Time) error
	RecoverStale(ctx context.Context) (int64, error)
	PendingDepth(ctx context.Context) (int64, error)
}

// Submitter submits one payout transaction and returns its hash. The wallet
// is a singleton resource owned by the QueueProcessor; nothing else may
// submit transactions.
type Submitter interface {
	Submit(ctx context.Context, address string, amount int64) (string, error)
}

// BalanceSource reports the faucet wallet balance.
type BalanceSource interface {
	WalletBalance(ctx context.Context) (int64, error)
}

// QueueProcessor drains the disbursement queue on a fixed-interval ticker.
// At most one submission is in flight across the whole process at any
// instant: the in-flight flag is test-and-set before a cycle touches the
// store and cleared only after the item's terminal outcome is persisted.
type QueueProcessor struct {
	Store     QueueStore
	Submitter Submitter
	Balance   BalanceSource
	Config    *ConfigStore
	Clock     func() time.Time

	TickInterval time.Duration
	DrainTimeout time.Duration

	inFlight atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Start recovers rows left processing by a previous crash and launches the
// ticker loop.
func (q *QueueProcessor) Start(ctx context.Context) error {
	if q == nil || q.Store == nil || q.Submitter == nil {
		return errors.New("queue processor is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	recovered, err := q.Store.RecoverStale(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 && observability.ServerLogger != nil {
		observability.ServerLogger.Info("Recovered interrupted disbursements",
			zap.Int64("count", recovered))
	}

	tick := q.TickInterval
	if tick <= 0 {
		tick = 10 * time.Second
	}

	q.stop = make(chan struct{})
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			select {
			case <-q.stop:
				return
			case <-ticker.C:
				q.ProcessTick(context.Background())
			}
		}
	}()

	return nil
}

// Stop halts the ticker and drains the queue for a bounded time. Items still
// pending at forced shutdown remain so in storage and are picked up again
// after restart.
func (q *QueueProcessor) Stop(ctx context.Context) error {
	if q == nil || q.stop == nil {
		return nil
	}
	q.stopOnce.Do(func() { close(q.stop) })
	q.wg.Wait()

	drain := q.DrainTimeout
	if drain <= 0 {
		drain = 30 * time.Second
	}
	drainCtx := ctx
	if drainCtx == nil {
		drainCtx = context.Background()
	}
	drainCtx, cancel := context.WithTimeout(drainCtx, drain)
	defer cancel()

	for {
		depth, err := q.Store.PendingDepth(drainCtx)
		if err != nil || depth == 0 {
			return nil
		}
		if !q.ProcessTick(drainCtx) {
			return nil
		}
		select {
		case <-drainCtx.Done():
			if observability.ServerLogger != nil {
				observability.ServerLogger.Warn("Queue drain timed out, pending items remain in storage",
					zap.Int64("pending", depth))
			}
			return nil
		default:
		}
	}
}

// ProcessTick attempts to advance the queue by one item. It returns false
// when another cycle is already in flight or the queue is empty; overlapping
// ticks are no-ops.
func (q *QueueProcessor) ProcessTick(ctx context.Context) bool {
	if q == nil || q.Store == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// Single-flight gate: set before any store access, cleared only after
	// the item's terminal outcome is persisted.
	if !q.inFlight.CompareAndSwap(false, true) {
		return false
	}
	defer q.inFlight.Store(false)

	rt := q.Config.Runtime()

	if q.Balance != nil && rt.MinBalanceAlert > 0 {
		if balance, err := q.Balance.WalletBalance(ctx); err == nil {
			if balance < rt.MinBalanceAlert/10 {
				// Wallet below the operable floor: hold the queue rather
				// than burning attempts on submissions that cannot fund.
				if observability.ServerLogger != nil {
					observability.ServerLogger.Warn("Wallet balance below operable floor, holding queue",
						zap.Int64("balance", balance),
						zap.Int64("min_balance_alert", rt.MinBalanceAlert))
				}
				return false
			}
		}
	}

	item, err := q.Store.NextQueued(ctx, q.now())
	if err != nil {
		if observability.ServerLogger != nil {
			observability.ServerLogger.Error("Failed to read queue head", zap.Error(err))
		}
		return false
	}
	if item == nil {
		return false
	}

	q.processItem(ctx, item, rt)
	q.reportDepth(ctx)
	return true
}

func (q *QueueProcessor) processItem(ctx context.Context, item *core.DisbursementRequest, rt Runtime) {
	if err := q.Store.MarkProcessing(ctx, item.ID); err != nil {
		if observability.ServerLogger != nil {
			observability.ServerLogger.Error("Failed to mark request processing",
				zap.String("request_id", item.ID), zap.Error(err))
		}
		return
	}

	txHash, submitErr := q.Submitter.Submit(ctx, item.Address, item.Amount)
	now := q.now()

	if submitErr == nil {
		if err := q.Store.MarkCompleted(ctx, item.ID, txHash, now); err != nil {
			if observability.ServerLogger != nil {
				observability.ServerLogger.Error("Failed to persist completed disbursement",
					zap.String("request_id", item.ID),
					zap.String("tx_hash", txHash),
					zap.Error(err))
			}
			return
		}
		metrics.RecordDisbursement(true, item.Amount)
		if observability.ServerLogger != nil {
			observability.ServerLogger.Info("Disbursement completed",
				zap.String("request_id", item.ID),
				zap.String("address", item.Address),
				zap.Int64("amount", item.Amount),
				zap.String("tx_hash", txHash))
		}
		return
	}

	attempts := item.Attempts + 1
	if attempts < rt.MaxAttempts {
		// Linear backoff; re-append at the tail so a failing item cannot
		// starve fresher requests.
		delay := rt.RetryBaseDelay * time.Duration(attempts)
		if err := q.Store.Requeue(ctx, item.ID, attempts, submitErr.Error(), now, now.Add(delay)); err != nil {
			if observability.ServerLogger != nil {
				observability.ServerLogger.Error("Failed to requeue disbursement",
					zap.String("request_id", item.ID), zap.Error(err))
			}
			return
		}
		metrics.RecordRetry(attempts)
		if observability.ServerLogger != nil {
			observability.ServerLogger.Warn("Disbursement failed, retry scheduled",
				zap.String("request_id", item.ID),
				zap.Int("attempts", attempts),
				zap.Duration("delay", delay),
				zap.Error(submitErr))
		}
		return
	}

	if err := q.Store.MarkFailed(ctx, item.ID, attempts, submitErr.Error()); err != nil {
		if observability.ServerLogger != nil {
			observability.ServerLogger.Error("Failed to persist terminal failure",
				zap.String("request_id", item.ID), zap.Error(err))
		}
		return
	}
	metrics.RecordDisbursement(false, item.Amount)
	if observability.ServerLogger != nil {
		observability.ServerLogger.Error("Disbursement permanently failed",
			zap.String("request_id", item.ID),
			zap.String("address", item.Address),
			zap.Int("attempts", attempts),
			zap.Error(submitErr))
	}
}

func (q *QueueProcessor) reportDepth(ctx context.Context) {
	if depth, err := q.Store.PendingDepth(ctx); err == nil {
		metrics.SetQueueDepth(depth)
	}
}

func (q *QueueProcessor) now() time.Time {
	if q != nil && q.Clock != nil {
		return q.Clock()
	}
	return time.Now().UTC()
}
