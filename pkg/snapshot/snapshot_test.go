package snapshot_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truenas-collector/pkg/snapshot"
)

var t0 = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func TestStoreUninitialized(t *testing.T) {
	s := snapshot.NewStore()
	snap, ok := s.Read()
	assert.False(t, ok)
	assert.Nil(t, snap)

	s.Publish(snapshot.Reduce(nil, false, nil, t0))
	snap, ok = s.Read()
	require.True(t, ok)
	assert.Equal(t, uint64(1), snap.Version)
	assert.False(t, snap.Up)
}

func TestReducePartialFailureKeepsStaleSamples(t *testing.T) {
	pool := snapshot.NewSample("pool_healthy", "", 1, t0, "pool", "tank")
	disk := snapshot.NewSample("disk_size_bytes", "", 42, t0, "disk", "sda")

	first := snapshot.Reduce(nil, true, []snapshot.Outcome{
		{Domain: "pool", Samples: []snapshot.Sample{pool}},
		{Domain: "disk", Samples: []snapshot.Sample{disk}},
	}, t0)

	t1 := t0.Add(time.Minute)
	disk2 := snapshot.NewSample("disk_size_bytes", "", 43, t1, "disk", "sda")
	second := snapshot.Reduce(first, true, []snapshot.Outcome{
		{Domain: "pool", Err: errors.New("rpc pool.query: timeout")},
		{Domain: "disk", Samples: []snapshot.Sample{disk2}},
	}, t1)

	assert.Equal(t, uint64(2), second.Version)
	assert.True(t, second.Up)

	p := second.Domains["pool"]
	assert.True(t, p.Freshness.Stale)
	assert.Equal(t, "rpc pool.query: timeout", p.Freshness.Reason)
	assert.Equal(t, []snapshot.Sample{pool}, p.Samples)
	assert.Equal(t, t0, p.LastSuccess)

	d := second.Domains["disk"]
	assert.Equal(t, snapshot.Fresh, d.Freshness)
	assert.Equal(t, []snapshot.Sample{disk2}, d.Samples)
	assert.Equal(t, t1, d.LastSuccess)

	// 上一份快照不受影响
	assert.False(t, first.Domains["pool"].Freshness.Stale)
}

func TestReduceFailedDomainWithoutHistory(t *testing.T) {
	snap := snapshot.Reduce(nil, true, []snapshot.Outcome{{Domain: "smart", Err: errors.New("boom")}}, t0)
	d := snap.Domains["smart"]
	assert.True(t, d.Freshness.Stale)
	assert.Empty(t, d.Samples)
	assert.True(t, d.LastSuccess.IsZero())
}

func TestLinkDownMarksEveryDomainStale(t *testing.T) {
	prev := snapshot.Reduce(nil, true, []snapshot.Outcome{
		{Domain: "pool", Samples: []snapshot.Sample{snapshot.NewSample("pool_healthy", "", 1, t0, "pool", "tank")}},
	}, t0)

	snap := snapshot.LinkDown(prev, []string{"pool", "alert"}, t0.Add(time.Minute))
	assert.False(t, snap.Up)
	assert.Equal(t, []string{"alert", "pool"}, snap.DomainNames())
	for _, name := range snap.DomainNames() {
		assert.Equal(t, snapshot.StaleBecause(snapshot.ReasonLinkDown), snap.Domains[name].Freshness, name)
	}
	s, ok := snap.Find("pool_healthy", "pool", "tank")
	require.True(t, ok)
	assert.InDelta(t, 1.0, s.Value, 0)
}

func TestSampleAccessors(t *testing.T) {
	s := snapshot.NewSample("pool_vdev_errors", "help", 3, t0, "pool", "tank", "vdev", "sda", "type", "read")
	assert.Equal(t, []string{"pool", "vdev", "type"}, s.LabelNames())
	assert.Equal(t, []string{"tank", "sda", "read"}, s.LabelValues())
	v, ok := s.Label("vdev")
	assert.True(t, ok)
	assert.Equal(t, "sda", v)
	_, ok = s.Label("missing")
	assert.False(t, ok)
	assert.Equal(t, "fresh", snapshot.Fresh.String())
	assert.Equal(t, "stale(link down)", snapshot.StaleBecause("link down").String())
}

// 并发发布/读取，读到的快照必须完整一致（配合 go test -race）
func TestStoreNoTornReads(t *testing.T) {
	store := snapshot.NewStore()
	const versions = 2000

	build := func(v uint64) *snapshot.Snapshot {
		samples := make([]snapshot.Sample, 16)
		for i := range samples {
			samples[i] = snapshot.NewSample("marker", "", float64(v), t0, "i", string(rune('a'+i)))
		}
		return &snapshot.Snapshot{
			Version: v,
			Up:      v%2 == 0,
			Domains: map[string]snapshot.Domain{"m": {Name: "m", Samples: samples}},
		}
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap, ok := store.Read()
				if !ok {
					continue
				}
				assert.Equal(t, snap.Version%2 == 0, snap.Up)
				for _, s := range snap.Domains["m"].Samples {
					if !assert.InDelta(t, float64(snap.Version), s.Value, 0) {
						return
					}
				}
				assert.GreaterOrEqual(t, snap.Version, last)
				last = snap.Version
			}
		}()
	}

	for v := uint64(1); v <= versions; v++ {
		store.Publish(build(v))
	}
	close(stop)
	wg.Wait()

	snap, ok := store.Read()
	require.True(t, ok)
	assert.Equal(t, uint64(versions), snap.Version)
}
