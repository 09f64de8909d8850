package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/truenas-collector/pkg/snapshot"
)

// Namespace prefixes every appliance metric name.
const Namespace = "truenas"

// SnapshotCollector exposes the current snapshot on every scrape. It never
// talks to the appliance; a scrape only reads the store.
//
// Describe sends nothing, so the registry treats it as unchecked: sample
// families are only known once a snapshot exists.
type SnapshotCollector struct {
	store *snapshot.Store
	log   *zap.Logger

	up          *prometheus.Desc
	initialized *prometheus.Desc
	version     *prometheus.Desc
	timestamp   *prometheus.Desc
	stale       *prometheus.Desc
	lastSuccess *prometheus.Desc
}

// NewSnapshotCollector 创建并注册快照暴露采集器
func (m *MetricFactory) NewSnapshotCollector(store *snapshot.Store, log *zap.Logger) *SnapshotCollector {
	c := NewSnapshotCollector(store, log)
	m.reg.MustRegister(c)
	return c
}

func NewSnapshotCollector(store *snapshot.Store, log *zap.Logger) *SnapshotCollector {
	if log == nil {
		log = zap.NewNop()
	}
	return &SnapshotCollector{
		store: store,
		log:   log,
		up: prometheus.NewDesc(prometheus.BuildFQName(Namespace, "", "up"),
			"Whether the last collection ran over a ready link.", nil, nil),
		initialized: prometheus.NewDesc(prometheus.BuildFQName(Namespace, "snapshot", "initialized"),
			"Whether any snapshot has been published yet.", nil, nil),
		version: prometheus.NewDesc(prometheus.BuildFQName(Namespace, "snapshot", "version"),
			"Version of the exposed snapshot.", nil, nil),
		timestamp: prometheus.NewDesc(prometheus.BuildFQName(Namespace, "snapshot", "timestamp_seconds"),
			"Time the exposed snapshot was built.", nil, nil),
		stale: prometheus.NewDesc(prometheus.BuildFQName(Namespace, "collector", "stale"),
			"Whether the domain's samples are carried over from an earlier collection.", []string{"collector"}, nil),
		lastSuccess: prometheus.NewDesc(prometheus.BuildFQName(Namespace, "collector", "last_success_timestamp_seconds"),
			"Last time the domain was collected successfully.", []string{"collector"}, nil),
	}
}

func (c *SnapshotCollector) Describe(chan<- *prometheus.Desc) {}

func (c *SnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	snap, ok := c.store.Read()
	if !ok {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.initialized, prometheus.GaugeValue, 0)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, boolValue(snap.Up))
	ch <- prometheus.MustNewConstMetric(c.initialized, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(c.version, prometheus.GaugeValue, float64(snap.Version))
	ch <- prometheus.MustNewConstMetric(c.timestamp, prometheus.GaugeValue, unixSeconds(snap))

	for _, name := range snap.DomainNames() {
		d := snap.Domains[name]
		ch <- prometheus.MustNewConstMetric(c.stale, prometheus.GaugeValue, boolValue(d.Freshness.Stale), name)
		if !d.LastSuccess.IsZero() {
			ch <- prometheus.MustNewConstMetric(c.lastSuccess, prometheus.GaugeValue,
				float64(d.LastSuccess.UnixNano())/1e9, name)
		}
	}

	c.collectSamples(ch, snap)
}

type family struct {
	desc   *prometheus.Desc
	labels string
}

// collectSamples emits every sample as a gauge. The registry rejects a whole
// scrape on a duplicate series or a family with mixed label names, so both are
// skipped here: the first occurrence wins.
func (c *SnapshotCollector) collectSamples(ch chan<- prometheus.Metric, snap *snapshot.Snapshot) {
	families := make(map[string]family)
	seen := make(map[string]struct{})

	for _, s := range snap.Samples() {
		names := s.LabelNames()
		values := s.LabelValues()
		labelKey := strings.Join(names, "\x00")

		fam, ok := families[s.Name]
		if !ok {
			fam = family{
				desc:   prometheus.NewDesc(prometheus.BuildFQName(Namespace, "", s.Name), helpOf(s), names, nil),
				labels: labelKey,
			}
			families[s.Name] = fam
		} else if fam.labels != labelKey {
			c.log.Debug("sample with inconsistent labels skipped", zap.String("name", s.Name), zap.Strings("labels", names))
			continue
		}

		series := s.Name + "\x00" + strings.Join(values, "\x00")
		if _, dup := seen[series]; dup {
			c.log.Debug("duplicate sample skipped", zap.String("name", s.Name), zap.Strings("values", values))
			continue
		}
		seen[series] = struct{}{}

		m, err := prometheus.NewConstMetric(fam.desc, prometheus.GaugeValue, s.Value, values...)
		if err != nil {
			c.log.Debug("invalid sample skipped", zap.String("name", s.Name), zap.Error(err))
			continue
		}
		ch <- m
	}
}

func helpOf(s snapshot.Sample) string {
	if s.Help != "" {
		return s.Help
	}
	return s.Name
}

func unixSeconds(snap *snapshot.Snapshot) float64 {
	return float64(snap.CollectedAt.UnixNano()) / 1e9
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
