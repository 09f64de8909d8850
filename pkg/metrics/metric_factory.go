package metrics

// MetricFactory 指标工厂，用于统一创建并注册 exporter 自身的指标。
type MetricFactory struct {
	reg Registers
}

// NewMetricFactory 创建指标工厂
func NewMetricFactory(reg Registers) *MetricFactory {
	return &MetricFactory{reg: reg}
}

// Registry returns the registry the factory registers into.
func (m *MetricFactory) Registry() Registers {
	return m.reg
}
