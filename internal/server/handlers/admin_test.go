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
	"github.com/spigot/spigot/internal/core/store"
)

type fakeAdminStore struct {
	requests  []core.DisbursementRequest
	blacklist map[string]core.BlacklistEntry
}

func newFakeAdminStore() *fakeAdminStore {
	return &fakeAdminStore{blacklist: make(map[string]core.BlacklistEntry)}
}

func (f *fakeAdminStore) ListRequests(ctx context.Context, q store.RequestQuery) ([]core.DisbursementRequest, error) {
	if q.Status == "" {
		return f.requests, nil
	}
	var out []core.DisbursementRequest
	for _, req := range f.requests {
		if req.Status == q.Status {
			out = append(out, req)
		}
	}
	return out, nil
}

func (f *fakeAdminStore) PendingDepth(ctx context.Context) (int64, error) {
	var depth int64
	for _, req := range f.requests {
		if req.Status == core.StatusPending {
			depth++
		}
	}
	return depth, nil
}

func (f *fakeAdminStore) ListBlacklist(ctx context.Context) ([]core.BlacklistEntry, error) {
	var out []core.BlacklistEntry
	for _, entry := range f.blacklist {
		out = append(out, entry)
	}
	return out, nil
}

func (f *fakeAdminStore) AddBlacklistEntry(ctx context.Context, address, reason string) error {
	f.blacklist[address] = core.BlacklistEntry{Address: address, Reason: reason, CreatedAt: time.Now().UTC()}
	return nil
}

func (f *fakeAdminStore) RemoveBlacklistEntry(ctx context.Context, address string) (int64, error) {
	if _, ok := f.blacklist[address]; !ok {
		return 0, nil
	}
	delete(f.blacklist, address)
	return 1, nil
}

func newTestAdmin(t *testing.T) (*Admin, *fakeAdminStore, *engine.ConfigStore) {
	t.Helper()

	cfg := &engine.ConfigStore{
		Store:    &memorySettings{values: map[string]string{}},
		Defaults: config.FaucetConfig{Amount: 100, CooldownHours: 24, DailyLimit: 10000},
	}
	require.NoError(t, cfg.Reload(context.Background()))

	adminStore := newFakeAdminStore()
	return &Admin{Store: adminStore, Config: cfg}, adminStore, cfg
}

func TestGetConfigSnapshot(t *testing.T) {
	admin, _, _ := newTestAdmin(t)

	rec := httptest.NewRecorder()
	admin.GetConfig(rec, httptest.NewRequest(http.MethodGet, "/admin/config", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	require.Equal(t, "100", snapshot[engine.SettingAmount])
	require.Equal(t, "false", snapshot[engine.SettingMaintenance])
}

func TestPutConfigAppliesSettings(t *testing.T) {
	admin, _, cfg := newTestAdmin(t)

	body, _ := json.Marshal(map[string]string{
		engine.SettingAmount:      "250",
		engine.SettingMaintenance: "true",
	})
	rec := httptest.NewRecorder()
	admin.PutConfig(rec, httptest.NewRequest(http.MethodPut, "/admin/config", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(250), cfg.Runtime().Amount)
	require.True(t, cfg.Runtime().Maintenance)
}

func TestPutConfigRejectsUnknownKey(t *testing.T) {
	admin, _, cfg := newTestAdmin(t)

	body, _ := json.Marshal(map[string]string{"no_such_setting": "1"})
	rec := httptest.NewRecorder()
	admin.PutConfig(rec, httptest.NewRequest(http.MethodPut, "/admin/config", bytes.NewReader(body)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, int64(100), cfg.Runtime().Amount)
}

func TestPutConfigRejectsBadValue(t *testing.T) {
	admin, _, _ := newTestAdmin(t)

	body, _ := json.Marshal(map[string]string{engine.SettingAmount: "not-a-number"})
	rec := httptest.NewRecorder()
	admin.PutConfig(rec, httptest.NewRequest(http.MethodPut, "/admin/config", bytes.NewReader(body)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetQueue(t *testing.T) {
	admin, adminStore, _ := newTestAdmin(t)
	adminStore.requests = []core.DisbursementRequest{
		{ID: "a", Status: core.StatusPending},
		{ID: "b", Status: core.StatusCompleted},
	}

	rec := httptest.NewRecorder()
	admin.GetQueue(rec, httptest.NewRequest(http.MethodGet, "/admin/queue", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp QueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(1), resp.PendingDepth)
	require.Len(t, resp.Requests, 2)
}

func TestGetQueueFiltersByStatus(t *testing.T) {
	admin, adminStore, _ := newTestAdmin(t)
	adminStore.requests = []core.DisbursementRequest{
		{ID: "a", Status: core.StatusPending},
		{ID: "b", Status: core.StatusFailed},
	}

	rec := httptest.NewRecorder()
	admin.GetQueue(rec, httptest.NewRequest(http.MethodGet, "/admin/queue?status=failed", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp QueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Requests, 1)
	require.Equal(t, "b", resp.Requests[0].ID)
}

func TestBlacklistLifecycle(t *testing.T) {
	admin, adminStore, _ := newTestAdmin(t)

	router := chi.NewRouter()
	router.Get("/admin/blacklist", admin.GetBlacklist)
	router.Post("/admin/blacklist", admin.AddBlacklist)
	router.Delete("/admin/blacklist/{address}", admin.RemoveBlacklist)

	body, _ := json.Marshal(BlacklistPayload{Address: goodAddress, Reason: "abuse"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/blacklist", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, adminStore.blacklist, goodAddress)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/blacklist", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []core.BlacklistEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "abuse", entries[0].Reason)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/blacklist/"+goodAddress, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, adminStore.blacklist)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/blacklist/"+goodAddress, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddBlacklistRequiresAddress(t *testing.T) {
	admin, _, _ := newTestAdmin(t)

	body, _ := json.Marshal(BlacklistPayload{Reason: "no address"})
	rec := httptest.NewRecorder()
	admin.AddBlacklist(rec, httptest.NewRequest(http.MethodPost, "/admin/blacklist", bytes.NewReader(body)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
