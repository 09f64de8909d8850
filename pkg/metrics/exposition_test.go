package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/truenas-collector/pkg/snapshot"
)

var at = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func TestUninitializedStoreExposesOnlyUp(t *testing.T) {
	c := NewSnapshotCollector(snapshot.NewStore(), zaptest.NewLogger(t))

	expected := `
# HELP truenas_snapshot_initialized Whether any snapshot has been published yet.
# TYPE truenas_snapshot_initialized gauge
truenas_snapshot_initialized 0
# HELP truenas_up Whether the last collection ran over a ready link.
# TYPE truenas_up gauge
truenas_up 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
	assert.Equal(t, 2, testutil.CollectAndCount(c))
}

func TestSnapshotIsExposed(t *testing.T) {
	store := snapshot.NewStore()
	first := snapshot.Reduce(nil, true, []snapshot.Outcome{
		{Domain: "pool", Samples: []snapshot.Sample{
			snapshot.NewSample("pool_healthy", "Whether the pool reports itself healthy.", 1, at, "pool", "tank"),
		}},
		{Domain: "disk", Samples: []snapshot.Sample{
			snapshot.NewSample("disk_size_bytes", "Disk size in bytes.", 100, at, "disk", "sda"),
		}},
	}, at)
	second := snapshot.Reduce(first, true, []snapshot.Outcome{
		{Domain: "pool", Samples: first.Domains["pool"].Samples},
		{Domain: "disk", Err: errors.New("boom")},
	}, at.Add(time.Minute))
	store.Publish(second)

	c := NewSnapshotCollector(store, zaptest.NewLogger(t))
	expected := `
# HELP truenas_collector_stale Whether the domain's samples are carried over from an earlier collection.
# TYPE truenas_collector_stale gauge
truenas_collector_stale{collector="disk"} 1
truenas_collector_stale{collector="pool"} 0
# HELP truenas_disk_size_bytes Disk size in bytes.
# TYPE truenas_disk_size_bytes gauge
truenas_disk_size_bytes{disk="sda"} 100
# HELP truenas_pool_healthy Whether the pool reports itself healthy.
# TYPE truenas_pool_healthy gauge
truenas_pool_healthy{pool="tank"} 1
# HELP truenas_snapshot_initialized Whether any snapshot has been published yet.
# TYPE truenas_snapshot_initialized gauge
truenas_snapshot_initialized 1
# HELP truenas_snapshot_version Version of the exposed snapshot.
# TYPE truenas_snapshot_version gauge
truenas_snapshot_version 2
# HELP truenas_up Whether the last collection ran over a ready link.
# TYPE truenas_up gauge
truenas_up 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"truenas_collector_stale", "truenas_disk_size_bytes", "truenas_pool_healthy",
		"truenas_snapshot_initialized", "truenas_snapshot_version", "truenas_up"))

	// 两个域都成功过一次
	assert.Equal(t, 2, testutil.CollectAndCount(c, "truenas_collector_last_success_timestamp_seconds"))
}

func TestLinkDownSnapshotKeepsSamples(t *testing.T) {
	store := snapshot.NewStore()
	prev := snapshot.Reduce(nil, true, []snapshot.Outcome{
		{Domain: "pool", Samples: []snapshot.Sample{snapshot.NewSample("pool_healthy", "h", 1, at, "pool", "tank")}},
	}, at)
	store.Publish(snapshot.LinkDown(prev, []string{"pool"}, at.Add(time.Minute)))

	c := NewSnapshotCollector(store, nil)
	assert.Equal(t, 1, testutil.CollectAndCount(c, "truenas_pool_healthy"))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "truenas_up"))

	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(c)
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "truenas_up" {
			assert.InDelta(t, 0.0, f.GetMetric()[0].GetGauge().GetValue(), 0)
		}
	}
}

func TestDuplicateAndInconsistentSamplesAreSkipped(t *testing.T) {
	store := snapshot.NewStore()
	store.Publish(snapshot.Reduce(nil, true, []snapshot.Outcome{
		{Domain: "alert", Samples: []snapshot.Sample{
			snapshot.NewSample("alert_count", "n", 1, at, "level", "INFO"),
			snapshot.NewSample("alert_count", "n", 2, at, "level", "INFO"),
			snapshot.NewSample("alert_count", "n", 3, at, "level", "WARNING"),
			snapshot.NewSample("alert_count", "n", 4, at, "severity", "WARNING"),
		}},
	}, at))

	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(NewSnapshotCollector(store, zaptest.NewLogger(t)))

	_, err := reg.Gather()
	require.NoError(t, err)
	count, err := testutil.GatherAndCount(reg, "truenas_alert_count")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestFactoryRegistersInto(t *testing.T) {
	reg := NewPromRegistry(prometheus.NewRegistry(), false)
	f := NewMetricFactory(reg)

	errs := f.NewAgentCollectErrorsTotal()
	errs.WithLabelValues("pool").Inc()
	f.NewLinkFailures(func() float64 { return 3 })
	f.NewSnapshotCollector(snapshot.NewStore(), nil)

	assert.InDelta(t, 1.0, testutil.ToFloat64(errs.WithLabelValues("pool")), 0)
	n, err := testutil.GatherAndCount(reg, "agent_collect_errors_total", "truenas_link_failures", "truenas_up")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Panics(t, func() { f.NewAgentCollectErrorsTotal() })
}

func TestProcessCollectorIsOptional(t *testing.T) {
	without := NewPromRegistry(prometheus.NewRegistry(), false)
	families, err := without.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}
