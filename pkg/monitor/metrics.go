package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/truenas-collector/pkg/link"
	"github.com/truenas-collector/pkg/metrics"
)

// LinkObserver is the part of the supervisor the self metrics read.
type LinkObserver interface {
	CurrentLink() link.State
	Failures() int
	Generation() uint64
	OnTransition(fn func(link.Transition))
}

// -------------------------- 采集自监控指标 --------------------------

// AgentMetrics 汇总 exporter 自身的指标，实现 collector.Recorder
type AgentMetrics struct {
	CollectErrors   *prometheus.CounterVec   // 按指标域统计失败次数
	CollectDuration *prometheus.HistogramVec // 按指标域统计耗时

	LinkState       *prometheus.GaugeVec
	LinkTransitions *prometheus.CounterVec
}

func NewAgentMetrics(f *metrics.MetricFactory) *AgentMetrics {
	return &AgentMetrics{
		CollectErrors:   f.NewAgentCollectErrorsTotal(),
		CollectDuration: f.NewAgentCollectDurationSeconds(),
		LinkState:       f.NewLinkState(),
		LinkTransitions: f.NewLinkTransitionsTotal(),
	}
}

// ObserveCollect records one domain collection.
func (m *AgentMetrics) ObserveCollect(domain string, took time.Duration, err error) {
	m.CollectDuration.WithLabelValues(domain).Observe(took.Seconds())
	if err != nil {
		m.CollectErrors.WithLabelValues(domain).Inc()
	}
}

// -------------------------- 连接状态指标 --------------------------

// WatchLink exports the link state and counters of l and keeps them current.
func (m *AgentMetrics) WatchLink(f *metrics.MetricFactory, l LinkObserver) {
	f.NewLinkFailures(func() float64 { return float64(l.Failures()) })
	f.NewLinkGeneration(func() float64 { return float64(l.Generation()) })

	m.setState(l.CurrentLink())
	l.OnTransition(m.ObserveTransition)
}

// ObserveTransition runs inside the supervisor's transition callback.
func (m *AgentMetrics) ObserveTransition(tr link.Transition) {
	m.LinkTransitions.WithLabelValues(tr.From.String(), tr.To.String()).Inc()
	m.setState(tr.To)
}

func (m *AgentMetrics) setState(current link.State) {
	for _, s := range link.States() {
		v := 0.0
		if s == current {
			v = 1
		}
		m.LinkState.WithLabelValues(s.String()).Set(v)
	}
}
