package metrics

import "github.com/prometheus/client_golang/prometheus"

// NewLinkState 当前连接状态，取值 1 的 state 即为当前状态
func (m *MetricFactory) NewLinkState() *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "truenas_link_state",
		Help: "Current state of the appliance link, 1 for the active state",
	}, []string{"state"})
	m.reg.MustRegister(g)
	return g
}

// NewLinkFailures reads the supervisor's consecutive failure counter on scrape.
func (m *MetricFactory) NewLinkFailures(fn func() float64) prometheus.GaugeFunc {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "truenas_link_failures",
		Help: "Consecutive connection failures since the link was last ready",
	}, fn)
	m.reg.MustRegister(g)
	return g
}

// NewLinkGeneration reads how many times the link became ready.
func (m *MetricFactory) NewLinkGeneration(fn func() float64) prometheus.CounterFunc {
	c := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "truenas_link_generation",
		Help: "Number of times the link reached the ready state",
	}, fn)
	m.reg.MustRegister(c)
	return c
}

func (m *MetricFactory) NewLinkTransitionsTotal() *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "truenas_link_transitions_total",
		Help: "Link state transitions",
	}, []string{"from", "to"})
	m.reg.MustRegister(c)
	return c
}
