package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spigot/spigot/internal/core"
)

// Address format bounds. The alphabet is base58: no zero, capital O,
// capital I, or lowercase l.
const (
	minAddressLength = 26
	maxAddressLength = 95
	base58Alphabet   = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
)

// ValidationStore provides the read-only lookups validation needs.
type ValidationStore interface {
	IsBlacklisted(ctx context.Context, address string) (bool, error)
	LatestCompletion(ctx context.Context, address string) (*time.Time, error)
	HasActiveRequest(ctx context.Context, address string) (bool, error)
	SumCompletedSince(ctx context.Context, since time.Time) (int64, error)
	CountByIPSince(ctx context.Context, sourceIP string, since time.Time) (int, error)
}

// Validator applies the faucet's business rules to an inbound request. It is
// read-only; persisting an accepted request is the caller's job.
//
// Lookback policy: the cooldown is computed from completed disbursements
// only, while the per-IP cap counts requests of any status. The asymmetry is
// intentional: failed or pending attempts still consume IP budget so an
// abuser cannot probe for free.
type Validator struct {
	Store  ValidationStore
	Config *ConfigStore
	Clock  func() time.Time
}

// Validate checks one request. A blacklisted address or an active cooldown
// short-circuits; the remaining rules accumulate their error messages.
func (v *Validator) Validate(ctx context.Context, address, sourceIP string) (*core.ValidationResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	address = strings.TrimSpace(address)
	rt := v.Config.Runtime()
	now := v.now()

	blacklisted, err := v.Store.IsBlacklisted(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("blacklist lookup: %w", err)
	}
	if blacklisted {
		return &core.ValidationResult{Errors: []string{"address is not eligible for disbursements"}}, nil
	}

	result := &core.ValidationResult{}

	if msg := checkAddressFormat(address); msg != "" {
		result.Errors = append(result.Errors, msg)
	}

	if rt.CooldownHours > 0 {
		completedAt, err := v.Store.LatestCompletion(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("cooldown lookup: %w", err)
		}
		if completedAt != nil {
			eligibleAt := completedAt.Add(time.Duration(rt.CooldownHours) * time.Hour)
			if now.Before(eligibleAt) {
				remaining := int64(eligibleAt.Sub(now).Seconds())
				if remaining < 1 {
					remaining = 1
				}
				return &core.ValidationResult{
					Errors:            []string{fmt.Sprintf("cooldown active: %d seconds remaining", remaining)},
					CooldownRemaining: remaining,
				}, nil
			}
		}
	}

	active, err := v.Store.HasActiveRequest(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("active request lookup: %w", err)
	}
	if active {
		result.Errors = append(result.Errors, "a request for this address is already queued")
	}

	dayAgo := now.Add(-24 * time.Hour)

	if rt.DailyLimit > 0 {
		disbursed, err := v.Store.SumCompletedSince(ctx, dayAgo)
		if err != nil {
			return nil, fmt.Errorf("daily cap lookup: %w", err)
		}
		if disbursed+rt.Amount > rt.DailyLimit {
			result.Errors = append(result.Errors, "daily disbursement limit reached, try again later")
		}
	}

	if rt.IPDailyLimit > 0 {
		ipCount, err := v.Store.CountByIPSince(ctx, sourceIP, dayAgo)
		if err != nil {
			return nil, fmt.Errorf("ip cap lookup: %w", err)
		}
		if ipCount >= rt.IPDailyLimit {
			result.Errors = append(result.Errors, "too many requests from this IP today")
		}
	}

	result.Valid = len(result.Errors) == 0
	return result, nil
}

func checkAddressFormat(address string) string {
	if len(address) < minAddressLength || len(address) > maxAddressLength {
		return fmt.Sprintf("address length must be between %d and %d characters", minAddressLength, maxAddressLength)
	}
	for _, r := range address {
		if !strings.ContainsRune(base58Alphabet, r) {
			return "address contains invalid characters"
		}
	}
	return ""
}

func (v *Validator) now() time.Time {
	if v != nil && v.Clock != nil {
		return v.Clock()
	}
	return time.Now().UTC()
}
