package handlers

import (
	"net/http"
	"time"

	"github.com/spigot/spigot/internal/core"
	"github.com/spigot/spigot/internal/core/engine"
)

// Health serves the liveness and deep health endpoints.
type Health struct {
	Aggregator *engine.HealthAggregator
	Version    string
}

// LivenessResponse is the cheap GET /health reply.
type LivenessResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// FullHealthResponse is the GET /health/full reply.
type FullHealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    []ProbeReport     `json:"checks"`
	Summary   map[string]string `json:"summary,omitempty"`
}

// ProbeReport is one probe's externally visible result.
type ProbeReport struct {
	Service        string         `json:"service"`
	Status         string         `json:"status"`
	ResponseTimeMS int64          `json:"response_time_ms"`
	Details        map[string]any `json:"details,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// Liveness handles GET /health. It confirms the process is serving without
// touching any dependency, so orchestrators never restart the faucet because
// an upstream is down.
func (h *Health) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:    "ok",
		Version:   h.Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Full handles GET /health/full: run all probes and report per-dependency
// results. Only an unhealthy aggregate returns 503; degraded stays 200 so
// load balancers keep routing while operators investigate.
func (h *Health) Full(w http.ResponseWriter, r *http.Request) {
	results, overall := h.Aggregator.Run(r.Context())

	checks := make([]ProbeReport, 0, len(results))
	summary := make(map[string]string, len(results))
	for _, result := range results {
		checks = append(checks, ProbeReport{
			Service:        result.Service,
			Status:         string(result.Status),
			ResponseTimeMS: result.ResponseTime.Milliseconds(),
			Details:        result.Details,
			Error:          result.Err,
		})
		summary[result.Service] = string(result.Status)
	}

	status := http.StatusOK
	if overall == core.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, FullHealthResponse{
		Status:    string(overall),
		Version:   h.Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Summary:   summary,
	})
}
