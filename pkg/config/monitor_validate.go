package config

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Validate HTTP服务配置校验
func (h *ServerConfig) Validate() error {
	if err := valid.Struct(h); err != nil {
		return err
	}
	if h.Addr == "" {
		return errors.New("server.addr cannot be empty")
	}
	// 用net包解析地址，验证格式合法性
	if _, err := net.ResolveTCPAddr("tcp", h.Addr); err != nil {
		return fmt.Errorf("server.addr format invalid (expected: :port or ip:port), got %s: %w", h.Addr, err)
	}
	return nil
}

func (m *MonitorConfig) Validate() error {
	if err := valid.Struct(m); err != nil {
		return err
	}
	if m.Interval < time.Second || m.Interval > 3600*time.Second {
		return fmt.Errorf("monitor.interval must be between 1 and 3600 seconds, got %s", m.Interval)
	}
	// 单域超时不能超过采集间隔，否则下一轮会与上一轮重叠
	if m.DomainTimeout > m.Interval {
		return fmt.Errorf("monitor.domain_timeout (%s) must not exceed monitor.interval (%s)", m.DomainTimeout, m.Interval)
	}
	return m.Collectors.validate()
}

// 校验至少启用一个指标域，否则没有意义
func (col *CollectorConfig) validate() error {
	if len(col.Enabled()) == 0 {
		return fmt.Errorf("at least one collector must be enabled under monitor.collectors")
	}
	return nil
}

// Enabled returns the config keys of the enabled collectors in a fixed order.
func (col *CollectorConfig) Enabled() []string {
	flags := []struct {
		name string
		on   bool
	}{
		{"pool", col.Pool},
		{"dataset", col.Dataset},
		{"disk", col.Disk},
		{"smart", col.Smart},
		{"share", col.Share},
		{"cloud_sync", col.CloudSync},
		{"snapshot_task", col.SnapshotTask},
		{"alert", col.Alert},
		{"system_info", col.SystemInfo},
		{"reporting", col.Reporting},
		{"app", col.App},
		{"network_interface", col.NetworkInterface},
		{"service", col.Service},
	}
	var out []string
	for _, f := range flags {
		if f.on {
			out = append(out, f.name)
		}
	}
	return out
}
