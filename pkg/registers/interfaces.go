package registers

import (
	"context"

	"github.com/truenas-collector/pkg/collector"
)

// Agent 顶层采集器接口（封装所有指标域的生命周期管理）
// 新增指标域仅需实现 collector.Domain，并在 modules 表里加一行
type Agent interface {
	Register(d collector.Domain)        // 注册指标域
	Start(ctx context.Context)          // 启动采集（定时器循环）
	Shutdown(ctx context.Context) error // 优雅停止
}

var _ Agent = (*collector.Orchestrator)(nil)
