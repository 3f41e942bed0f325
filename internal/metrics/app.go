package metrics

import (
	"time"

	"github.com/spigot/spigot/internal/observability"
)

// Faucet metrics following Prometheus conventions
var (
	// Disbursement metrics
	DisbursementsTotal  = "faucet_disbursements_total"
	DisbursedAmount     = "faucet_disbursed_amount_total"
	RetriesTotal        = "faucet_retries_total"
	QueueDepth          = "faucet_queue_depth"
	RequestsAccepted    = "faucet_requests_accepted_total"
	RequestsRejected    = "faucet_requests_rejected_total"
	WalletBalance       = "faucet_wallet_balance"

	// Rate limiter metrics
	RateLimitRejections = "ratelimit_rejections_total"
	RateLimitFailOpen   = "ratelimit_fail_open_total"

	// Health check metrics
	HealthCheckTotal    = "health_check_total"
	HealthCheckDuration = "health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "server_start_time_seconds"
)

// RecordDisbursement records one terminal queue outcome.
func RecordDisbursement(success bool, amount int64) {
	status := "completed"
	if !success {
		status = "failed"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			DisbursementsTotal,
			1,
			map[string]string{"status": status},
		)
		if success {
			_ = observability.TelemetrySystem.Counter(
				DisbursedAmount,
				float64(amount),
				nil,
			)
		}
	}
}

// RecordRetry records a scheduled retry attempt.
func RecordRetry(attempt int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RetriesTotal,
			1,
			nil,
		)
	}
}

// SetQueueDepth sets the number of queued disbursements.
func SetQueueDepth(depth int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			QueueDepth,
			float64(depth),
			nil,
		)
	}
}

// RecordRequestOutcome records an admission decision at the API boundary.
func RecordRequestOutcome(accepted bool, reason string) {
	if observability.TelemetrySystem == nil {
		return
	}
	if accepted {
		_ = observability.TelemetrySystem.Counter(RequestsAccepted, 1, nil)
		return
	}
	_ = observability.TelemetrySystem.Counter(
		RequestsRejected,
		1,
		map[string]string{"reason": reason},
	)
}

// SetWalletBalance records the last observed faucet wallet balance.
func SetWalletBalance(balance int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			WalletBalance,
			float64(balance),
			nil,
		)
	}
}

// RecordRateLimitRejection records a rejected call per route class.
func RecordRateLimitRejection(routeClass, kind string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RateLimitRejections,
			1,
			map[string]string{
				"route_class": routeClass,
				"kind":        kind,
			},
		)
	}
}

// RecordRateLimitFailOpen records a storage failure that let a call through.
func RecordRateLimitFailOpen(routeClass string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RateLimitFailOpen,
			1,
			map[string]string{"route_class": routeClass},
		)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}
