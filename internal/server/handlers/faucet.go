package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spigot/spigot/internal/core"
	"github.com/spigot/spigot/internal/core/engine"
	apperrors "github.com/spigot/spigot/internal/errors"
	"github.com/spigot/spigot/internal/metrics"
)

// FaucetStore is the request persistence the public handlers need.
type FaucetStore interface {
	CreateRequest(ctx context.Context, req *core.DisbursementRequest) error
	GetRequest(ctx context.Context, id string) (*core.DisbursementRequest, error)
	LatestCompletion(ctx context.Context, address string) (*time.Time, error)
	Stats(ctx context.Context, now time.Time) (*core.FaucetStats, error)
}

// Faucet serves the public API: request submission, status polling,
// cooldown lookup, and stats.
type Faucet struct {
	Store     FaucetStore
	Validator *engine.Validator
	Config    *engine.ConfigStore
	Clock     func() time.Time
}

// RequestPayload is the POST /api/request body.
type RequestPayload struct {
	Address string `json:"address"`
	Captcha string `json:"captcha,omitempty"`
}

// RequestResponse is the POST /api/request reply.
type RequestResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	RequestID         string `json:"request_id,omitempty"`
	Amount            int64  `json:"amount,omitempty"`
	CooldownRemaining int64  `json:"cooldown_remaining,omitempty"`
}

// StatusResponse is the GET /api/status/{id} reply.
type StatusResponse struct {
	ID              string     `json:"id"`
	Address         string     `json:"address"`
	Amount          int64      `json:"amount"`
	Status          string     `json:"status"`
	TransactionHash string     `json:"transaction_hash,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	Attempts        int        `json:"attempts"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// CooldownResponse is the GET /api/cooldown/{address} reply.
type CooldownResponse struct {
	Address           string `json:"address"`
	Eligible          bool   `json:"eligible"`
	CooldownRemaining int64  `json:"cooldown_remaining"`
}

// Request handles POST /api/request: validate, persist as pending, and let
// the queue processor pick it up. The response never waits on submission.
func (f *Faucet) Request(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if f.Config.Runtime().Maintenance {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("faucet is down for maintenance"))
		return
	}

	var payload RequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		metrics.RecordRequestOutcome(false, "bad_payload")
		respondWithError(w, r, apperrors.NewInvalidInputError("request body must be JSON with an address field"))
		return
	}

	address := strings.TrimSpace(payload.Address)
	sourceIP := clientIP(r)

	result, err := f.Validator.Validate(ctx, address, sourceIP)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(ctx, err, "validation lookup failed"))
		return
	}

	if !result.Valid {
		metrics.RecordRequestOutcome(false, rejectionReason(result))
		writeJSON(w, http.StatusBadRequest, RequestResponse{
			Message:           strings.Join(result.Errors, "; "),
			CooldownRemaining: result.CooldownRemaining,
		})
		return
	}

	now := f.now()
	req := &core.DisbursementRequest{
		ID:            uuid.New().String(),
		Address:       address,
		Amount:        f.Config.Runtime().Amount,
		SourceIP:      sourceIP,
		UserAgent:     r.UserAgent(),
		Status:        core.StatusPending,
		CreatedAt:     now,
		QueuedAt:      now,
		NextAttemptAt: now,
	}

	if err := f.Store.CreateRequest(ctx, req); err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(ctx, err, "failed to persist request"))
		return
	}

	metrics.RecordRequestOutcome(true, "")
	writeJSON(w, http.StatusOK, RequestResponse{
		Success:   true,
		Message:   "request queued for disbursement",
		RequestID: req.ID,
		Amount:    req.Amount,
	})
}

// Status handles GET /api/status/{id}.
func (f *Faucet) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	req, err := f.Store.GetRequest(ctx, id)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(ctx, err, "failed to load request"))
		return
	}
	if req == nil {
		respondWithError(w, r, apperrors.NewNotFoundError("no request with that id"))
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		ID:              req.ID,
		Address:         req.Address,
		Amount:          req.Amount,
		Status:          string(req.Status),
		TransactionHash: req.TransactionHash,
		ErrorMessage:    req.ErrorMessage,
		Attempts:        req.Attempts,
		CreatedAt:       req.CreatedAt,
		CompletedAt:     req.CompletedAt,
	})
}

// Cooldown handles GET /api/cooldown/{address}.
func (f *Faucet) Cooldown(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address := strings.TrimSpace(chi.URLParam(r, "address"))

	completedAt, err := f.Store.LatestCompletion(ctx, address)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(ctx, err, "failed to load cooldown state"))
		return
	}

	response := CooldownResponse{Address: address, Eligible: true}
	if completedAt != nil {
		cooldown := time.Duration(f.Config.Runtime().CooldownHours) * time.Hour
		eligibleAt := completedAt.Add(cooldown)
		if now := f.now(); now.Before(eligibleAt) {
			response.Eligible = false
			response.CooldownRemaining = int64(eligibleAt.Sub(now).Seconds())
			if response.CooldownRemaining < 1 {
				response.CooldownRemaining = 1
			}
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// Stats handles GET /api/stats.
func (f *Faucet) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := f.Store.Stats(ctx, f.now())
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(ctx, err, "failed to compute stats"))
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (f *Faucet) now() time.Time {
	if f != nil && f.Clock != nil {
		return f.Clock()
	}
	return time.Now().UTC()
}

// rejectionReason buckets validation failures into low-cardinality labels.
func rejectionReason(result *core.ValidationResult) string {
	if result.CooldownRemaining > 0 {
		return "cooldown"
	}
	if len(result.Errors) == 0 {
		return "unknown"
	}
	msg := result.Errors[0]
	switch {
	case strings.Contains(msg, "eligible"):
		return "blacklisted"
	case strings.Contains(msg, "address"):
		return "bad_address"
	case strings.Contains(msg, "daily"):
		return "daily_cap"
	case strings.Contains(msg, "IP"):
		return "ip_cap"
	case strings.Contains(msg, "queued"):
		return "duplicate"
	default:
		return "other"
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
