package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/spigot/spigot/internal/core"
	"github.com/spigot/spigot/internal/core/engine"
	"github.com/spigot/spigot/internal/core/store"
	apperrors "github.com/spigot/spigot/internal/errors"
)

// AdminStore is the persistence the admin surface needs.
type AdminStore interface {
	ListRequests(ctx context.Context, q store.RequestQuery) ([]core.DisbursementRequest, error)
	PendingDepth(ctx context.Context) (int64, error)
	ListBlacklist(ctx context.Context) ([]core.BlacklistEntry, error)
	AddBlacklistEntry(ctx context.Context, address, reason string) error
	RemoveBlacklistEntry(ctx context.Context, address string) (int64, error)
}

// Admin serves the token-guarded operator surface.
type Admin struct {
	Store  AdminStore
	Config *engine.ConfigStore
}

// QueueResponse is the GET /admin/queue reply.
type QueueResponse struct {
	PendingDepth int64                      `json:"pending_depth"`
	Requests     []core.DisbursementRequest `json:"requests"`
}

// BlacklistPayload is the POST /admin/blacklist body.
type BlacklistPayload struct {
	Address string `json:"address"`
	Reason  string `json:"reason,omitempty"`
}

// GetConfig handles GET /admin/config.
func (a *Admin) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Config.Snapshot())
}

// PutConfig handles PUT /admin/config: a map of setting keys to string
// values, applied atomically per key. Unknown keys or unparsable values
// reject the whole update before anything is written.
func (a *Admin) PutConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var updates map[string]string
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError("request body must be a JSON object of setting values"))
		return
	}
	if len(updates) == 0 {
		respondWithError(w, r, apperrors.NewInvalidInputError("no settings provided"))
		return
	}

	for key, value := range updates {
		if err := a.Config.Set(ctx, key, value); err != nil {
			respondWithError(w, r, apperrors.NewValidationError(err.Error()))
			return
		}
	}

	writeJSON(w, http.StatusOK, a.Config.Snapshot())
}

// GetQueue handles GET /admin/queue. An optional status query parameter
// filters; default shows pending and processing work.
func (a *Admin) GetQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := store.RequestQuery{Limit: 100}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		query.Status = core.RequestStatus(status)
	}

	requests, err := a.Store.ListRequests(ctx, query)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(ctx, err, "failed to list queue"))
		return
	}

	depth, err := a.Store.PendingDepth(ctx)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(ctx, err, "failed to read queue depth"))
		return
	}

	if requests == nil {
		requests = []core.DisbursementRequest{}
	}
	writeJSON(w, http.StatusOK, QueueResponse{PendingDepth: depth, Requests: requests})
}

// GetBlacklist handles GET /admin/blacklist.
func (a *Admin) GetBlacklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entries, err := a.Store.ListBlacklist(ctx)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(ctx, err, "failed to list blacklist"))
		return
	}
	if entries == nil {
		entries = []core.BlacklistEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// AddBlacklist handles POST /admin/blacklist.
func (a *Admin) AddBlacklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload BlacklistPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError("request body must be JSON with an address field"))
		return
	}

	address := strings.TrimSpace(payload.Address)
	if address == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("address is required"))
		return
	}

	if err := a.Store.AddBlacklistEntry(ctx, address, payload.Reason); err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(ctx, err, "failed to add blacklist entry"))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"address": address, "status": "blacklisted"})
}

// RemoveBlacklist handles DELETE /admin/blacklist/{address}.
func (a *Admin) RemoveBlacklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address := strings.TrimSpace(chi.URLParam(r, "address"))

	removed, err := a.Store.RemoveBlacklistEntry(ctx, address)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(ctx, err, "failed to remove blacklist entry"))
		return
	}
	if removed == 0 {
		respondWithError(w, r, apperrors.NewNotFoundError("address is not blacklisted"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"address": address, "status": "removed"})
}
