package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/spigot/spigot/internal/core"
	"github.com/spigot/spigot/internal/metrics"
)

// Probe checks one dependent subsystem. Implementations fill Status,
// Details, and Err; the aggregator records the service name and timing.
type Probe func(ctx context.Context) core.ProbeResult

// HealthAggregator runs registered probes in parallel and reduces their
// results to one service status.
type HealthAggregator struct {
	Timeout time.Duration

	mu     sync.Mutex
	names  []string
	probes map[string]Probe
}

// RegisterProbe adds a named probe. Registration order is preserved in
// results.
func (h *HealthAggregator) RegisterProbe(name string, probe Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.probes == nil {
		h.probes = make(map[string]Probe)
	}
	if _, exists := h.probes[name]; !exists {
		h.names = append(h.names, name)
	}
	h.probes[name] = probe
}

// Run executes all probes in parallel and returns their results with the
// aggregate status: any unhealthy probe makes the whole service unhealthy,
// else any degraded probe makes it degraded.
func (h *HealthAggregator) Run(ctx context.Context) ([]core.ProbeResult, core.HealthStatus) {
	if ctx == nil {
		ctx = context.Background()
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	h.mu.Lock()
	names := make([]string, len(h.names))
	copy(names, h.names)
	probes := make(map[string]Probe, len(h.probes))
	for name, probe := range h.probes {
		probes[name] = probe
	}
	h.mu.Unlock()

	results := make([]core.ProbeResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string, probe Probe) {
			defer wg.Done()
			start := time.Now()
			result := probe(probeCtx)
			result.Service = name
			result.ResponseTime = time.Since(start)
			results[i] = result
			metrics.RecordHealthCheck(name, result.Status == core.HealthHealthy, result.ResponseTime)
		}(i, name, probes[name])
	}
	wg.Wait()

	return results, Aggregate(results)
}

// Aggregate reduces probe results to one status.
func Aggregate(results []core.ProbeResult) core.HealthStatus {
	overall := core.HealthHealthy
	for _, result := range results {
		switch result.Status {
		case core.HealthUnhealthy:
			return core.HealthUnhealthy
		case core.HealthDegraded:
			overall = core.HealthDegraded
		}
	}
	return overall
}

// Pinger is anything that can answer a trivial reachability query.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageProbe checks database reachability with a trivial query.
func StorageProbe(store Pinger) Probe {
	return func(ctx context.Context) core.ProbeResult {
		if err := store.Ping(ctx); err != nil {
			return core.ProbeResult{Status: core.HealthUnhealthy, Err: err.Error()}
		}
		return core.ProbeResult{Status: core.HealthHealthy}
	}
}

// NodeStatusSource reports upstream node reachability and sync progress.
type NodeStatusSource interface {
	NodeStatus(ctx context.Context) (height int64, peers int, synced bool, err error)
}

// NodeProbe checks upstream node reachability; an unsynced node is degraded,
// an unreachable one unhealthy.
func NodeProbe(source NodeStatusSource) Probe {
	return func(ctx context.Context) core.ProbeResult {
		height, peers, synced, err := source.NodeStatus(ctx)
		if err != nil {
			return core.ProbeResult{Status: core.HealthUnhealthy, Err: err.Error()}
		}
		details := map[string]any{"height": height, "peers": peers, "synced": synced}
		if !synced {
			return core.ProbeResult{Status: core.HealthDegraded, Details: details}
		}
		return core.ProbeResult{Status: core.HealthHealthy, Details: details}
	}
}

// WalletProbe checks funding sufficiency: unhealthy below 10% of the alert
// floor, degraded below the floor itself.
func WalletProbe(balance BalanceSource, cfg *ConfigStore) Probe {
	return func(ctx context.Context) core.ProbeResult {
		value, err := balance.WalletBalance(ctx)
		if err != nil {
			return core.ProbeResult{Status: core.HealthUnhealthy, Err: err.Error()}
		}

		alert := cfg.Runtime().MinBalanceAlert
		details := map[string]any{"balance": value, "min_balance_alert": alert}
		metrics.SetWalletBalance(value)

		switch {
		case alert > 0 && value < alert/10:
			return core.ProbeResult{Status: core.HealthUnhealthy, Details: details}
		case alert > 0 && value < alert:
			return core.ProbeResult{Status: core.HealthDegraded, Details: details}
		default:
			return core.ProbeResult{Status: core.HealthHealthy, Details: details}
		}
	}
}

// MemoryProbe checks system memory utilization: unhealthy above 90%,
// degraded above 80%.
func MemoryProbe() Probe {
	return func(ctx context.Context) core.ProbeResult {
		stats, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return core.ProbeResult{Status: core.HealthDegraded, Err: err.Error()}
		}

		details := map[string]any{"used_percent": fmt.Sprintf("%.1f", stats.UsedPercent)}
		switch {
		case stats.UsedPercent > 90:
			return core.ProbeResult{Status: core.HealthUnhealthy, Details: details}
		case stats.UsedPercent > 80:
			return core.ProbeResult{Status: core.HealthDegraded, Details: details}
		default:
			return core.ProbeResult{Status: core.HealthHealthy, Details: details}
		}
	}
}

// FilesystemProbe verifies the data directory is writable.
func FilesystemProbe(dataDir string) Probe {
	return func(ctx context.Context) core.ProbeResult {
		if dataDir == "" {
			dataDir = os.TempDir()
		}
		marker := filepath.Join(dataDir, ".spigot-health")
		if err := os.WriteFile(marker, []byte("ok"), 0600); err != nil {
			return core.ProbeResult{Status: core.HealthUnhealthy, Err: err.Error()}
		}
		if err := os.Remove(marker); err != nil {
			return core.ProbeResult{Status: core.HealthDegraded, Err: err.Error()}
		}
		return core.ProbeResult{Status: core.HealthHealthy}
	}
}
