package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spigot/spigot/internal/config"
)

const validAddress = "1A1zP1eP5QGefi2DMPTfTL5SLmv7Divf"

type fakeValidationStore struct {
	blacklisted  map[string]bool
	completions  map[string]time.Time
	active       map[string]bool
	completedSum int64
	countByIP    map[string]int
}

func newFakeValidationStore() *fakeValidationStore {
	return &fakeValidationStore{
		blacklisted: make(map[string]bool),
		completions: make(map[string]time.Time),
		active:      make(map[string]bool),
		countByIP:   make(map[string]int),
	}
}

func (f *fakeValidationStore) IsBlacklisted(ctx context.Context, address string) (bool, error) {
	return f.blacklisted[address], nil
}

func (f *fakeValidationStore) LatestCompletion(ctx context.Context, address string) (*time.Time, error) {
	at, ok := f.completions[address]
	if !ok {
		return nil, nil
	}
	return &at, nil
}

func (f *fakeValidationStore) HasActiveRequest(ctx context.Context, address string) (bool, error) {
	return f.active[address], nil
}

func (f *fakeValidationStore) SumCompletedSince(ctx context.Context, since time.Time) (int64, error) {
	return f.completedSum, nil
}

func (f *fakeValidationStore) CountByIPSince(ctx context.Context, sourceIP string, since time.Time) (int, error) {
	return f.countByIP[sourceIP], nil
}

func newTestValidator(t *testing.T, store *fakeValidationStore) (*Validator, time.Time) {
	t.Helper()

	cfg := &ConfigStore{
		Defaults: config.FaucetConfig{
			Amount:        100,
			CooldownHours: 24,
			DailyLimit:    1000,
			IPDailyLimit:  5,
		},
	}
	require.NoError(t, cfg.Reload(context.Background()))

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &Validator{
		Store:  store,
		Config: cfg,
		Clock:  func() time.Time { return now },
	}, now
}

func TestValidateAccepts(t *testing.T) {
	validator, _ := newTestValidator(t, newFakeValidationStore())

	result, err := validator.Validate(context.Background(), validAddress, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Empty(t, result.Errors)
}

func TestValidateBlacklistShortCircuits(t *testing.T) {
	store := newFakeValidationStore()
	store.blacklisted[validAddress] = true
	// Also trip the IP cap; blacklist must mask everything else.
	store.countByIP["10.0.0.1"] = 99
	validator, _ := newTestValidator(t, store)

	result, err := validator.Validate(context.Background(), validAddress, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "not eligible")
}

func TestValidateAddressFormat(t *testing.T) {
	validator, _ := newTestValidator(t, newFakeValidationStore())
	ctx := context.Background()

	for _, address := range []string{
		"",
		"short",
		strings.Repeat("1", 96),
		"0OIl" + strings.Repeat("1", 30), // base58 excludes 0, O, I, l
	} {
		result, err := validator.Validate(ctx, address, "10.0.0.1")
		require.NoError(t, err)
		require.False(t, result.Valid, "address %q should be rejected", address)
	}
}

func TestValidateCooldown(t *testing.T) {
	store := newFakeValidationStore()
	validator, now := newTestValidator(t, store)
	store.completions[validAddress] = now.Add(-6 * time.Hour)

	result, err := validator.Validate(context.Background(), validAddress, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, int64(18*3600), result.CooldownRemaining)
}

func TestValidateCooldownExpired(t *testing.T) {
	store := newFakeValidationStore()
	validator, now := newTestValidator(t, store)
	store.completions[validAddress] = now.Add(-25 * time.Hour)

	result, err := validator.Validate(context.Background(), validAddress, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Zero(t, result.CooldownRemaining)
}

func TestValidateActiveRequest(t *testing.T) {
	store := newFakeValidationStore()
	store.active[validAddress] = true
	validator, _ := newTestValidator(t, store)

	result, err := validator.Validate(context.Background(), validAddress, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Contains(t, result.Errors[0], "already queued")
}

func TestValidateDailyCap(t *testing.T) {
	store := newFakeValidationStore()
	// 950 disbursed + 100 requested > 1000 cap.
	store.completedSum = 950
	validator, _ := newTestValidator(t, store)

	result, err := validator.Validate(context.Background(), validAddress, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Contains(t, result.Errors[0], "daily")
}

func TestValidateDailyCapExactFit(t *testing.T) {
	store := newFakeValidationStore()
	// 900 disbursed + 100 requested == 1000 cap exactly; still allowed.
	store.completedSum = 900
	validator, _ := newTestValidator(t, store)

	result, err := validator.Validate(context.Background(), validAddress, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, result.Valid)
}

func TestValidateIPCap(t *testing.T) {
	store := newFakeValidationStore()
	store.countByIP["10.0.0.1"] = 5
	validator, _ := newTestValidator(t, store)

	result, err := validator.Validate(context.Background(), validAddress, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Contains(t, result.Errors[0], "IP")

	// A different IP is unaffected.
	result, err = validator.Validate(context.Background(), validAddress, "10.0.0.2")
	require.NoError(t, err)
	require.True(t, result.Valid)
}

func TestValidateAccumulatesErrors(t *testing.T) {
	store := newFakeValidationStore()
	store.completedSum = 10000
	store.countByIP["10.0.0.1"] = 99
	validator, _ := newTestValidator(t, store)

	result, err := validator.Validate(context.Background(), "bad!", "10.0.0.1")
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 3)
}
