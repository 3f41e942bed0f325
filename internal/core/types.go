package core

import "time"

// RequestStatus tracks a disbursement request through the queue lifecycle.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
)

// DisbursementRequest is a queued faucet payout. Rows are created on
// successful validation and mutated only by the queue processor.
type DisbursementRequest struct {
	ID              string        `json:"id"`
	Address         string        `json:"address"`
	Amount          int64         `json:"amount"`
	SourceIP        string        `json:"source_ip"`
	UserAgent       string        `json:"user_agent,omitempty"`
	Status          RequestStatus `json:"status"`
	TransactionHash string        `json:"transaction_hash,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	Attempts        int           `json:"attempts"`
	CreatedAt       time.Time     `json:"created_at"`
	QueuedAt        time.Time     `json:"queued_at"`
	NextAttemptAt   time.Time     `json:"next_attempt_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// RateBlock is a hard denial for a key that outlasts the window that
// triggered it. One row per key, overwritten on re-trigger.
type RateBlock struct {
	Key        string    `json:"key"`
	BlockUntil time.Time `json:"block_until"`
}

// BlacklistEntry is a hard veto on an address, checked before all other
// validation.
type BlacklistEntry struct {
	Address   string    `json:"address"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidationResult reports the outcome of request validation. All failing
// rules are reported together except the cooldown, which short-circuits with
// the remaining wait.
type ValidationResult struct {
	Valid             bool     `json:"valid"`
	Errors            []string `json:"errors,omitempty"`
	CooldownRemaining int64    `json:"cooldown_remaining,omitempty"`
}

// HealthStatus is the three-state probe outcome.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// ProbeResult captures one health probe's outcome.
type ProbeResult struct {
	Service      string         `json:"service"`
	Status       HealthStatus   `json:"status"`
	ResponseTime time.Duration  `json:"response_time_ms"`
	Details      map[string]any `json:"details,omitempty"`
	Err          string         `json:"error,omitempty"`
}

// FaucetStats summarizes disbursement activity for /api/stats.
type FaucetStats struct {
	CompletedTotal  int64 `json:"completed_total"`
	DisbursedTotal  int64 `json:"disbursed_total"`
	FailedTotal     int64 `json:"failed_total"`
	PendingDepth    int64 `json:"pending_depth"`
	Completed24h    int64 `json:"completed_24h"`
	Disbursed24h    int64 `json:"disbursed_24h"`
	RequestsPast24h int64 `json:"requests_24h"`
}
