// Package engine holds the faucet's admission and distribution logic: the
// rate limiter, the request validator, the runtime config store, the queue
// processor, and the health aggregator. Components are plain structs with
// injected store interfaces so tests can substitute fakes deterministically.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigot/spigot/internal/core"
	"github.com/spigot/spigot/internal/metrics"
	"github.com/spigot/spigot/internal/observability"
)

// Route classes gated by the rate limiter.
const (
	RouteFaucet = "faucet"
	RouteAPI    = "api"
	RouteStatus = "status"
	RouteAdmin  = "admin"
)

// RouteLimit parameterizes one route class.
type RouteLimit struct {
	MaxRequests   int
	Window        time.Duration
	BlockDuration time.Duration
}

// DefaultLimits provides conservative defaults per route class.
var DefaultLimits = map[string]RouteLimit{
	RouteFaucet: {MaxRequests: 1, Window: 24 * time.Hour, BlockDuration: 24 * time.Hour},
	RouteAPI:    {MaxRequests: 100, Window: 15 * time.Minute, BlockDuration: time.Hour},
	RouteStatus: {MaxRequests: 60, Window: time.Minute, BlockDuration: 5 * time.Minute},
	RouteAdmin:  {MaxRequests: 20, Window: 15 * time.Minute, BlockDuration: time.Hour},
}

// RateLimitStore persists sliding-window hits and escalating blocks.
type RateLimitStore interface {
	PurgeHits(ctx context.Context, key string, cutoff time.Time) error
	CountHits(ctx context.Context, key string, cutoff time.Time) (int, error)
	RecordHit(ctx context.Context, key, sourceIP string, at time.Time) error
	GetBlock(ctx context.Context, key string) (*core.RateBlock, error)
	SetBlock(ctx context.Context, key string, blockUntil time.Time) error
}

// RateLimiter applies sliding-window admission control per
// (identity, route class) key. It protects the service itself and is
// independent of the business rules in Validator.
type RateLimiter struct {
	Store  RateLimitStore
	Limits map[string]RouteLimit
	Clock  func() time.Time
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Allow gates one call. The limiter fails open: a storage error is logged
// and the call is admitted, because rate limiting must never be the cause of
// a full outage.
func (r *RateLimiter) Allow(ctx context.Context, routeClass, identity, sourceIP string) Decision {
	if r == nil || r.Store == nil {
		return Decision{Allowed: true}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	limit := r.getLimit(routeClass)
	key := rateKey(identity, routeClass)
	now := r.now()

	if err := r.Store.PurgeHits(ctx, key, now.Add(-limit.Window)); err != nil {
		return r.failOpen(routeClass, "purge hits", err)
	}

	block, err := r.Store.GetBlock(ctx, key)
	if err != nil {
		return r.failOpen(routeClass, "fetch block", err)
	}
	if block != nil && now.Before(block.BlockUntil) {
		// Blocked calls are rejected without counting as a new hit.
		metrics.RecordRateLimitRejection(routeClass, "blocked")
		return Decision{RetryAfter: block.BlockUntil.Sub(now)}
	}

	count, err := r.Store.CountHits(ctx, key, now.Add(-limit.Window))
	if err != nil {
		return r.failOpen(routeClass, "count hits", err)
	}

	if count >= limit.MaxRequests {
		// Threshold crossed: escalate to a block that outlasts the window.
		if err := r.Store.SetBlock(ctx, key, now.Add(limit.BlockDuration)); err != nil {
			return r.failOpen(routeClass, "set block", err)
		}
		metrics.RecordRateLimitRejection(routeClass, "window")
		return Decision{RetryAfter: limit.BlockDuration}
	}

	if err := r.Store.RecordHit(ctx, key, sourceIP, now); err != nil {
		return r.failOpen(routeClass, "record hit", err)
	}

	remaining := limit.MaxRequests - count - 1
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining}
}

func (r *RateLimiter) failOpen(routeClass, op string, err error) Decision {
	if observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Rate limiter failing open",
			zap.String("route_class", routeClass),
			zap.String("operation", op),
			zap.Error(err))
	}
	metrics.RecordRateLimitFailOpen(routeClass)
	return Decision{Allowed: true}
}

func (r *RateLimiter) getLimit(routeClass string) RouteLimit {
	limits := r.Limits
	if limits == nil {
		limits = DefaultLimits
	}
	if limit, ok := limits[routeClass]; ok && limit.MaxRequests > 0 && limit.Window > 0 {
		return limit
	}
	if limit, ok := DefaultLimits[routeClass]; ok {
		return limit
	}
	return DefaultLimits[RouteAPI]
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

func rateKey(identity, routeClass string) string {
	return fmt.Sprintf("%s:%s", strings.TrimSpace(identity), routeClass)
}
