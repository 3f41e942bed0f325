package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/spigot/spigot/internal/config"
)

// Setting keys persisted in the settings table. Values are stored as
// strings and parsed on load; unparsable values fall back to the static
// config defaults.
const (
	SettingAmount          = "amount"
	SettingCooldownHours   = "cooldown_hours"
	SettingDailyLimit      = "daily_limit"
	SettingIPDailyLimit    = "ip_daily_limit"
	SettingMinBalanceAlert = "min_balance_alert"
	SettingMaxAttempts     = "max_attempts"
	SettingRetryBaseDelay  = "retry_base_delay"
	SettingMaintenance     = "maintenance"
)

var settingKeys = []string{
	SettingAmount,
	SettingCooldownHours,
	SettingDailyLimit,
	SettingIPDailyLimit,
	SettingMinBalanceAlert,
	SettingMaxAttempts,
	SettingRetryBaseDelay,
	SettingMaintenance,
}

// SettingsStore persists runtime tunables.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	AllSettings(ctx context.Context) (map[string]string, error)
}

// Runtime is an immutable snapshot of the tunable faucet parameters.
type Runtime struct {
	Amount          int64
	CooldownHours   int
	DailyLimit      int64
	IPDailyLimit    int
	MinBalanceAlert int64
	MaxAttempts     int
	RetryBaseDelay  time.Duration
	Maintenance     bool
}

// ConfigStore caches parsed runtime tunables on top of the settings table.
// Admin writes update the cache synchronously; Reload re-reads everything
// (wired to SIGHUP).
type ConfigStore struct {
	Store    SettingsStore
	Defaults config.FaucetConfig

	mu      sync.RWMutex
	runtime Runtime
}

// Reload reads the settings table and rebuilds the cached snapshot.
func (c *ConfigStore) Reload(ctx context.Context) error {
	if c == nil {
		return errors.New("config store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rt := c.defaultsRuntime()

	if c.Store != nil {
		stored, err := c.Store.AllSettings(ctx)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		applySettings(&rt, stored)
	}

	c.mu.Lock()
	c.runtime = rt
	c.mu.Unlock()
	return nil
}

// Runtime returns the current snapshot.
func (c *ConfigStore) Runtime() Runtime {
	if c == nil {
		return Runtime{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runtime
}

// Set validates, persists, and applies one setting.
func (c *ConfigStore) Set(ctx context.Context, key, value string) error {
	if c == nil || c.Store == nil {
		return errors.New("config store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if !knownSettingKey(key) {
		return fmt.Errorf("unknown setting: %s", key)
	}
	if err := validateSetting(key, value); err != nil {
		return err
	}

	if err := c.Store.SetSetting(ctx, key, value); err != nil {
		return err
	}

	c.mu.Lock()
	applySettings(&c.runtime, map[string]string{key: value})
	c.mu.Unlock()
	return nil
}

// Snapshot renders the effective settings as strings for the admin surface.
func (c *ConfigStore) Snapshot() map[string]string {
	rt := c.Runtime()
	return map[string]string{
		SettingAmount:          strconv.FormatInt(rt.Amount, 10),
		SettingCooldownHours:   strconv.Itoa(rt.CooldownHours),
		SettingDailyLimit:      strconv.FormatInt(rt.DailyLimit, 10),
		SettingIPDailyLimit:    strconv.Itoa(rt.IPDailyLimit),
		SettingMinBalanceAlert: strconv.FormatInt(rt.MinBalanceAlert, 10),
		SettingMaxAttempts:     strconv.Itoa(rt.MaxAttempts),
		SettingRetryBaseDelay:  rt.RetryBaseDelay.String(),
		SettingMaintenance:     strconv.FormatBool(rt.Maintenance),
	}
}

// Keys lists the recognized setting keys, sorted.
func Keys() []string {
	keys := make([]string, len(settingKeys))
	copy(keys, settingKeys)
	sort.Strings(keys)
	return keys
}

func (c *ConfigStore) defaultsRuntime() Runtime {
	d := c.Defaults
	rt := Runtime{
		Amount:          d.Amount,
		CooldownHours:   d.CooldownHours,
		DailyLimit:      d.DailyLimit,
		IPDailyLimit:    d.IPDailyLimit,
		MinBalanceAlert: d.MinBalanceAlert,
		MaxAttempts:     d.MaxAttempts,
		RetryBaseDelay:  d.RetryBaseDelay,
	}
	if rt.MaxAttempts <= 0 {
		rt.MaxAttempts = 3
	}
	if rt.RetryBaseDelay <= 0 {
		rt.RetryBaseDelay = 30 * time.Second
	}
	return rt
}

func applySettings(rt *Runtime, stored map[string]string) {
	for key, value := range stored {
		switch key {
		case SettingAmount:
			if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
				rt.Amount = parsed
			}
		case SettingCooldownHours:
			if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
				rt.CooldownHours = parsed
			}
		case SettingDailyLimit:
			if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
				rt.DailyLimit = parsed
			}
		case SettingIPDailyLimit:
			if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
				rt.IPDailyLimit = parsed
			}
		case SettingMinBalanceAlert:
			if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed >= 0 {
				rt.MinBalanceAlert = parsed
			}
		case SettingMaxAttempts:
			if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
				rt.MaxAttempts = parsed
			}
		case SettingRetryBaseDelay:
			if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
				rt.RetryBaseDelay = parsed
			}
		case SettingMaintenance:
			if parsed, err := strconv.ParseBool(value); err == nil {
				rt.Maintenance = parsed
			}
		}
	}
}

func knownSettingKey(key string) bool {
	for _, known := range settingKeys {
		if key == known {
			return true
		}
	}
	return false
}

func validateSetting(key, value string) error {
	switch key {
	case SettingAmount, SettingDailyLimit, SettingMinBalanceAlert:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return fmt.Errorf("setting %s requires an integer value: %w", key, err)
		}
	case SettingCooldownHours, SettingIPDailyLimit, SettingMaxAttempts:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("setting %s requires an integer value: %w", key, err)
		}
	case SettingRetryBaseDelay:
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("setting %s requires a duration value: %w", key, err)
		}
	case SettingMaintenance:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("setting %s requires a boolean value: %w", key, err)
		}
	}
	return nil
}
