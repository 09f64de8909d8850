package metrics

import "github.com/prometheus/client_golang/prometheus"

// NewAgentCollectErrorsTotal 创建「指标域采集错误总数」指标
// 指标类型：Counter，进程重启后归零
// 标签说明：
//
//	collector: 指标域名称（如 "pool"、"smart"、"reporting"）
func (m *MetricFactory) NewAgentCollectErrorsTotal() *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_collect_errors_total",
		Help: "Total failed collections per metric domain",
	}, []string{"collector"})
	m.reg.MustRegister(c)
	return c
}

// NewAgentCollectDurationSeconds 创建「指标域采集耗时分布」指标
// 指标类型：Histogram
// 分桶说明：0.01s ~ 40.96s，覆盖单次 RPC 到整域超时
func (m *MetricFactory) NewAgentCollectDurationSeconds() *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agent_collect_duration_seconds",
		Help:    "Collection duration per metric domain",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 13),
	}, []string{"collector"})
	m.reg.MustRegister(h)
	return h
}
