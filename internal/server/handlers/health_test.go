package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spigot/spigot/internal/core"
	"github.com/spigot/spigot/internal/core/engine"
)

func staticProbe(status core.HealthStatus, err error) engine.Probe {
	return func(ctx context.Context) core.ProbeResult {
		result := core.ProbeResult{Status: status}
		if err != nil {
			result.Err = err.Error()
		}
		return result
	}
}

func TestLivenessAlwaysOK(t *testing.T) {
	h := &Health{Aggregator: &engine.HealthAggregator{}, Version: "1.2.3"}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Liveness(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, "1.2.3", resp.Version)
}

func TestFullHealthAllHealthy(t *testing.T) {
	agg := &engine.HealthAggregator{}
	agg.RegisterProbe("storage", staticProbe(core.HealthHealthy, nil))
	agg.RegisterProbe("node", staticProbe(core.HealthHealthy, nil))
	h := &Health{Aggregator: agg, Version: "test"}

	req := httptest.NewRequest(http.MethodGet, "/health/full", nil)
	rec := httptest.NewRecorder()
	h.Full(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp FullHealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "healthy", resp.Status)
	require.Len(t, resp.Checks, 2)
	require.Equal(t, "healthy", resp.Summary["storage"])
}

func TestFullHealthDegradedStays200(t *testing.T) {
	agg := &engine.HealthAggregator{}
	agg.RegisterProbe("storage", staticProbe(core.HealthHealthy, nil))
	agg.RegisterProbe("node", staticProbe(core.HealthDegraded, nil))
	h := &Health{Aggregator: agg, Version: "test"}

	req := httptest.NewRequest(http.MethodGet, "/health/full", nil)
	rec := httptest.NewRecorder()
	h.Full(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp FullHealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "degraded", resp.Status)
}

func TestFullHealthUnhealthyReturns503(t *testing.T) {
	agg := &engine.HealthAggregator{}
	agg.RegisterProbe("storage", staticProbe(core.HealthUnhealthy, errors.New("connection refused")))
	h := &Health{Aggregator: agg, Version: "test"}

	req := httptest.NewRequest(http.MethodGet, "/health/full", nil)
	rec := httptest.NewRecorder()
	h.Full(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp FullHealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "unhealthy", resp.Status)
	require.Equal(t, "connection refused", resp.Checks[0].Error)
}
