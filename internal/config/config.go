// Package config defines the static application configuration loaded from
// the config file, environment variables, and flags via viper. Tunables that
// operators change at runtime (amounts, caps, maintenance flag) live in the
// settings table instead; see internal/core/engine.ConfigStore.
package config

import "time"

// Config represents the complete application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Node    NodeConfig    `mapstructure:"node"`
	Wallet  WalletConfig  `mapstructure:"wallet"`
	Faucet  FaucetConfig  `mapstructure:"faucet"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Admin   AdminConfig   `mapstructure:"admin"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`

	RateLimits map[string]RouteLimitConfig `mapstructure:"rate_limits"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// NodeConfig points at the upstream ledger node RPC.
type NodeConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WalletConfig identifies the faucet funding source. Key management and
// signing are external; the signature here is an opaque credential passed
// through to the node on submission.
type WalletConfig struct {
	Address   string `mapstructure:"address"`
	Signature string `mapstructure:"signature"`
	Fee       int64  `mapstructure:"fee"`
}

// FaucetConfig carries the static defaults for runtime tunables. Values in
// the settings table override these.
type FaucetConfig struct {
	Amount          int64         `mapstructure:"amount"`
	CooldownHours   int           `mapstructure:"cooldown_hours"`
	DailyLimit      int64         `mapstructure:"daily_limit"`
	IPDailyLimit    int           `mapstructure:"ip_daily_limit"`
	MinBalanceAlert int64         `mapstructure:"min_balance_alert"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"`
}

// QueueConfig controls the distribution queue processor.
type QueueConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// AdminConfig guards the admin HTTP surface. An empty token disables it.
type AdminConfig struct {
	Token string `mapstructure:"token"`
}

// RouteLimitConfig parameterizes the rate limiter for one route class.
type RouteLimitConfig struct {
	MaxRequests   int           `mapstructure:"max_requests"`
	Window        time.Duration `mapstructure:"window"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level controls the minimum log level.
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format).
	// Metrics are also proxied at /metrics on the main HTTP port.
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// ProbeTimeout bounds each individual probe.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}
