package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spigot/spigot/internal/config"
	"github.com/spigot/spigot/internal/core"
)

func TestAggregateStatuses(t *testing.T) {
	require.Equal(t, core.HealthHealthy, Aggregate(nil))

	require.Equal(t, core.HealthHealthy, Aggregate([]core.ProbeResult{
		{Status: core.HealthHealthy},
		{Status: core.HealthHealthy},
	}))

	require.Equal(t, core.HealthDegraded, Aggregate([]core.ProbeResult{
		{Status: core.HealthHealthy},
		{Status: core.HealthDegraded},
	}))

	require.Equal(t, core.HealthUnhealthy, Aggregate([]core.ProbeResult{
		{Status: core.HealthDegraded},
		{Status: core.HealthUnhealthy},
		{Status: core.HealthHealthy},
	}))
}

func TestRunExecutesProbesInParallel(t *testing.T) {
	agg := &HealthAggregator{Timeout: 2 * time.Second}

	gate := make(chan struct{})
	slow := func(ctx context.Context) core.ProbeResult {
		<-gate
		return core.ProbeResult{Status: core.HealthHealthy}
	}
	agg.RegisterProbe("a", slow)
	agg.RegisterProbe("b", slow)
	agg.RegisterProbe("c", slow)

	// If probes ran serially, closing the gate once would deadlock two of
	// them; parallel execution lets one close release all three.
	go close(gate)

	results, overall := agg.Run(context.Background())
	require.Equal(t, core.HealthHealthy, overall)
	require.Len(t, results, 3)
	require.Equal(t, "a", results[0].Service)
	require.Equal(t, "c", results[2].Service)
	for _, result := range results {
		require.GreaterOrEqual(t, result.ResponseTime, time.Duration(0))
	}
}

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func TestStorageProbe(t *testing.T) {
	probe := StorageProbe(fakePinger{})
	require.Equal(t, core.HealthHealthy, probe(context.Background()).Status)

	probe = StorageProbe(fakePinger{err: errors.New("locked")})
	result := probe(context.Background())
	require.Equal(t, core.HealthUnhealthy, result.Status)
	require.Equal(t, "locked", result.Err)
}

type fakeNodeStatus struct {
	height int64
	peers  int
	synced bool
	err    error
}

func (n fakeNodeStatus) NodeStatus(ctx context.Context) (int64, int, bool, error) {
	return n.height, n.peers, n.synced, n.err
}

func TestNodeProbe(t *testing.T) {
	probe := NodeProbe(fakeNodeStatus{height: 100, peers: 4, synced: true})
	result := probe(context.Background())
	require.Equal(t, core.HealthHealthy, result.Status)
	require.Equal(t, int64(100), result.Details["height"])

	probe = NodeProbe(fakeNodeStatus{height: 50, peers: 1, synced: false})
	require.Equal(t, core.HealthDegraded, probe(context.Background()).Status)

	probe = NodeProbe(fakeNodeStatus{err: errors.New("refused")})
	require.Equal(t, core.HealthUnhealthy, probe(context.Background()).Status)
}

func TestWalletProbeThresholds(t *testing.T) {
	cfg := &ConfigStore{Defaults: config.FaucetConfig{MinBalanceAlert: 1000}}
	require.NoError(t, cfg.Reload(context.Background()))

	cases := []struct {
		name    string
		balance int64
		want    core.HealthStatus
	}{
		{"well funded", 5000, core.HealthHealthy},
		{"at the floor", 1000, core.HealthHealthy},
		{"below alert", 999, core.HealthDegraded},
		{"near empty", 99, core.HealthUnhealthy},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			probe := WalletProbe(staticBalance{balance: tc.balance}, cfg)
			require.Equal(t, tc.want, probe(context.Background()).Status)
		})
	}
}

func TestWalletProbeUnreachableNode(t *testing.T) {
	cfg := &ConfigStore{Defaults: config.FaucetConfig{MinBalanceAlert: 1000}}
	require.NoError(t, cfg.Reload(context.Background()))

	probe := WalletProbe(staticBalance{err: errors.New("refused")}, cfg)
	require.Equal(t, core.HealthUnhealthy, probe(context.Background()).Status)
}

func TestFilesystemProbe(t *testing.T) {
	probe := FilesystemProbe(t.TempDir())
	require.Equal(t, core.HealthHealthy, probe(context.Background()).Status)

	probe = FilesystemProbe("/nonexistent/path/for/sure")
	require.Equal(t, core.HealthUnhealthy, probe(context.Background()).Status)
}
