package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/spigot/spigot/internal/config"
	"github.com/spigot/spigot/internal/core"
	"github.com/spigot/spigot/internal/core/engine"
)

const goodAddress = "1A1zP1eP5QGefi2DMPTfTL5SLmv7Divf"

type fakeFaucetStore struct {
	requests    map[string]*core.DisbursementRequest
	completions map[string]time.Time
	stats       core.FaucetStats
}

func newFakeFaucetStore() *fakeFaucetStore {
	return &fakeFaucetStore{
		requests:    make(map[string]*core.DisbursementRequest),
		completions: make(map[string]time.Time),
	}
}

func (f *fakeFaucetStore) CreateRequest(ctx context.Context, req *core.DisbursementRequest) error {
	clone := *req
	f.requests[req.ID] = &clone
	return nil
}

func (f *fakeFaucetStore) GetRequest(ctx context.Context, id string) (*core.DisbursementRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, nil
	}
	clone := *req
	return &clone, nil
}

func (f *fakeFaucetStore) LatestCompletion(ctx context.Context, address string) (*time.Time, error) {
	at, ok := f.completions[address]
	if !ok {
		return nil, nil
	}
	return &at, nil
}

func (f *fakeFaucetStore) Stats(ctx context.Context, now time.Time) (*core.FaucetStats, error) {
	stats := f.stats
	return &stats, nil
}

// fakeFaucetStore also satisfies engine.ValidationStore.
func (f *fakeFaucetStore) IsBlacklisted(ctx context.Context, address string) (bool, error) {
	return false, nil
}

func (f *fakeFaucetStore) HasActiveRequest(ctx context.Context, address string) (bool, error) {
	for _, req := range f.requests {
		if req.Address == address &&
			(req.Status == core.StatusPending || req.Status == core.StatusProcessing) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeFaucetStore) SumCompletedSince(ctx context.Context, since time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeFaucetStore) CountByIPSince(ctx context.Context, sourceIP string, since time.Time) (int, error) {
	return 0, nil
}

func newTestFaucet(t *testing.T, store *fakeFaucetStore) (*Faucet, *engine.ConfigStore) {
	t.Helper()

	cfg := &engine.ConfigStore{
		Defaults: config.FaucetConfig{
			Amount:          100,
			CooldownHours:   24,
			DailyLimit:      10000,
			IPDailyLimit:    5,
			MinBalanceAlert: 1000,
			MaxAttempts:     3,
			RetryBaseDelay:  time.Second,
		},
	}
	require.NoError(t, cfg.Reload(context.Background()))

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	return &Faucet{
		Store:     store,
		Validator: &engine.Validator{Store: store, Config: cfg, Clock: clock},
		Config:    cfg,
		Clock:     clock,
	}, cfg
}

func postRequest(t *testing.T, faucet *Faucet, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/request", bytes.NewReader(payload))
	req.RemoteAddr = "198.51.100.7:52100"
	rec := httptest.NewRecorder()
	faucet.Request(rec, req)
	return rec
}

func TestRequestAccepted(t *testing.T) {
	store := newFakeFaucetStore()
	faucet, _ := newTestFaucet(t, store)

	rec := postRequest(t, faucet, RequestPayload{Address: goodAddress})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RequestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.RequestID)
	require.Equal(t, int64(100), resp.Amount)

	persisted := store.requests[resp.RequestID]
	require.NotNil(t, persisted)
	require.Equal(t, goodAddress, persisted.Address)
	require.Equal(t, core.StatusPending, persisted.Status)
	require.Equal(t, "198.51.100.7", persisted.SourceIP)
}

func TestRequestRejectsBadAddress(t *testing.T) {
	store := newFakeFaucetStore()
	faucet, _ := newTestFaucet(t, store)

	rec := postRequest(t, faucet, RequestPayload{Address: "too-short"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp RequestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.Contains(t, resp.Message, "address")
	require.Empty(t, store.requests)
}

func TestRequestRejectsDuringCooldown(t *testing.T) {
	store := newFakeFaucetStore()
	faucet, _ := newTestFaucet(t, store)

	store.completions[goodAddress] = faucet.now().Add(-1 * time.Hour)

	rec := postRequest(t, faucet, RequestPayload{Address: goodAddress})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp RequestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.Equal(t, int64(23*3600), resp.CooldownRemaining)
}

func TestRequestRejectsDuplicateActive(t *testing.T) {
	store := newFakeFaucetStore()
	faucet, _ := newTestFaucet(t, store)

	first := postRequest(t, faucet, RequestPayload{Address: goodAddress})
	require.Equal(t, http.StatusOK, first.Code)

	second := postRequest(t, faucet, RequestPayload{Address: goodAddress})
	require.Equal(t, http.StatusBadRequest, second.Code)
	require.Len(t, store.requests, 1)
}

func TestRequestMaintenanceMode(t *testing.T) {
	store := newFakeFaucetStore()
	faucet, cfg := newTestFaucet(t, store)

	cfg.Store = &memorySettings{values: map[string]string{engine.SettingMaintenance: "true"}}
	require.NoError(t, cfg.Reload(context.Background()))

	rec := postRequest(t, faucet, RequestPayload{Address: goodAddress})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Empty(t, store.requests)
}

func TestRequestInvalidBody(t *testing.T) {
	store := newFakeFaucetStore()
	faucet, _ := newTestFaucet(t, store)

	req := httptest.NewRequest(http.MethodPost, "/api/request", bytes.NewReader([]byte("not json")))
	req.RemoteAddr = "198.51.100.7:52100"
	rec := httptest.NewRecorder()
	faucet.Request(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFound(t *testing.T) {
	store := newFakeFaucetStore()
	faucet, _ := newTestFaucet(t, store)

	accepted := postRequest(t, faucet, RequestPayload{Address: goodAddress})
	var created RequestResponse
	require.NoError(t, json.Unmarshal(accepted.Body.Bytes(), &created))

	router := chi.NewRouter()
	router.Get("/api/status/{id}", faucet.Status)

	req := httptest.NewRequest(http.MethodGet, "/api/status/"+created.RequestID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, created.RequestID, status.ID)
	require.Equal(t, "pending", status.Status)
}

func TestStatusNotFound(t *testing.T) {
	store := newFakeFaucetStore()
	faucet, _ := newTestFaucet(t, store)

	router := chi.NewRouter()
	router.Get("/api/status/{id}", faucet.Status)

	req := httptest.NewRequest(http.MethodGet, "/api/status/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCooldownLookup(t *testing.T) {
	store := newFakeFaucetStore()
	faucet, _ := newTestFaucet(t, store)

	store.completions[goodAddress] = faucet.now().Add(-2 * time.Hour)

	router := chi.NewRouter()
	router.Get("/api/cooldown/{address}", faucet.Cooldown)

	req := httptest.NewRequest(http.MethodGet, "/api/cooldown/"+goodAddress, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp CooldownResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Eligible)
	require.Equal(t, int64(22*3600), resp.CooldownRemaining)
}

func TestCooldownEligibleWhenNoHistory(t *testing.T) {
	store := newFakeFaucetStore()
	faucet, _ := newTestFaucet(t, store)

	router := chi.NewRouter()
	router.Get("/api/cooldown/{address}", faucet.Cooldown)

	req := httptest.NewRequest(http.MethodGet, "/api/cooldown/"+goodAddress, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp CooldownResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Eligible)
	require.Zero(t, resp.CooldownRemaining)
}

func TestStats(t *testing.T) {
	store := newFakeFaucetStore()
	store.stats = core.FaucetStats{CompletedTotal: 7, DisbursedTotal: 700, PendingDepth: 2}
	faucet, _ := newTestFaucet(t, store)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	faucet.Stats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats core.FaucetStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, int64(7), stats.CompletedTotal)
	require.Equal(t, int64(700), stats.DisbursedTotal)
}

// memorySettings is a map-backed engine.SettingsStore.
type memorySettings struct {
	values map[string]string
}

func (m *memorySettings) GetSetting(ctx context.Context, key string) (string, error) {
	return m.values[key], nil
}

func (m *memorySettings) SetSetting(ctx context.Context, key, value string) error {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

func (m *memorySettings) AllSettings(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}
