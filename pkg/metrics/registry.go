package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Registers 隔离 Prometheus 的具体注册实现，单测里可以换成独立的 registry。
type Registers interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// promRegistry 包裹官方的 *prometheus.Registry
type promRegistry struct {
	registry *prometheus.Registry
}

// NewPromRegistry wraps registry. enableProcess adds the process collector of
// the exporter itself; Go runtime metrics are never registered.
func NewPromRegistry(registry *prometheus.Registry, enableProcess bool) Registers {
	if enableProcess {
		registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}
	return &promRegistry{registry: registry}
}

// Register 实现 prometheus.Registerer
func (p *promRegistry) Register(collector prometheus.Collector) error {
	return p.registry.Register(collector)
}

// MustRegister panics on the first collector that fails to register.
func (p *promRegistry) MustRegister(collectors ...prometheus.Collector) {
	for _, c := range collectors {
		if err := p.registry.Register(c); err != nil {
			panic(err)
		}
	}
}

// Unregister 实现 prometheus.Registerer
func (p *promRegistry) Unregister(collector prometheus.Collector) bool {
	return p.registry.Unregister(collector)
}

// Gather 实现 prometheus.Gatherer，供 promhttp 使用
func (p *promRegistry) Gather() ([]*dto.MetricFamily, error) {
	return p.registry.Gather()
}
