package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate 设备连接配置校验
// host 只接受 host 或 host:port，协议由 use_tls 决定，路径由 path 决定
func (t *TrueNASConfig) Validate() error {
	if err := valid.Struct(t); err != nil {
		return err
	}
	if strings.Contains(t.Host, "://") {
		return fmt.Errorf("truenas.host must not contain a scheme, set truenas.use_tls instead, got %q", t.Host)
	}
	if strings.ContainsAny(t.Host, "/ ") {
		return fmt.Errorf("truenas.host must be host or host:port, got %q", t.Host)
	}
	// IPv6 地址需要写成 [addr]:port
	if strings.Contains(t.Host, ":") {
		if _, _, err := net.SplitHostPort(t.Host); err != nil {
			return fmt.Errorf("truenas.host %q: %w", t.Host, err)
		}
	}
	if t.KeepaliveInterval > 0 && t.KeepaliveInterval < t.CallTimeout {
		return fmt.Errorf("truenas.keepalive_interval (%s) must be 0 or at least truenas.call_timeout (%s)",
			t.KeepaliveInterval, t.CallTimeout)
	}
	return valid.Struct(t.Backoff)
}
