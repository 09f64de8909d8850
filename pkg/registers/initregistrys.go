package registers

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/truenas-collector/pkg/collector"
	"github.com/truenas-collector/pkg/config"
	"github.com/truenas-collector/pkg/link"
	"github.com/truenas-collector/pkg/metrics"
	"github.com/truenas-collector/pkg/monitor"
	"github.com/truenas-collector/pkg/snapshot"
)

// Runtime 是组装好的全部运行时组件
type Runtime struct {
	Registry     metrics.Registers // 供 /metrics 暴露
	Supervisor   *link.Supervisor  // 设备连接
	Store        *snapshot.Store   // 最新快照
	Orchestrator *collector.Orchestrator
	Metrics      *monitor.AgentMetrics
	Domains      []collector.Domain
}

// InitPromRegistry 组装 registry、连接监督器、快照存储和采集调度器，不启动任何 goroutine。
// 返回值
//
//	Runtime.Registry     Prometheus 注册器（仅进程指标可选，不注册 Go 指标）
//	Runtime.Supervisor   调用方负责 Run
//	Runtime.Orchestrator 调用方负责 Start/Shutdown
func InitPromRegistry(cfg *config.Config, log *zap.Logger) (*Runtime, error) {
	if log == nil {
		log = zap.NewNop()
	}

	reg := metrics.NewPromRegistry(prometheus.NewRegistry(), cfg.Server.EnableProcessMetrics)
	factory := metrics.NewMetricFactory(reg)

	sup := newSupervisor(cfg.TrueNAS, log.Named("link"))
	return build(cfg, reg, factory, sup, log)
}

func build(cfg *config.Config, reg metrics.Registers, factory *metrics.MetricFactory, sup *link.Supervisor, log *zap.Logger) (*Runtime, error) {
	store := snapshot.NewStore()
	agentMetrics := monitor.NewAgentMetrics(factory)
	agentMetrics.WatchLink(factory, sup)
	factory.NewSnapshotCollector(store, log.Named("exposition"))

	orch := collector.NewOrchestrator(sup, store, collector.Options{
		Interval:      cfg.Monitor.Interval,
		DomainTimeout: cfg.Monitor.DomainTimeout,
	}, agentMetrics, log.Named("collector"))

	domains, err := RegisterDomains(orch, cfg, log)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Registry:     reg,
		Supervisor:   sup,
		Store:        store,
		Orchestrator: orch,
		Metrics:      agentMetrics,
		Domains:      domains,
	}, nil
}

func newSupervisor(cfg config.TrueNASConfig, log *zap.Logger) *link.Supervisor {
	dialer := link.NewWebsocketDialer(link.DialConfig{
		Host:             cfg.Host,
		Path:             cfg.Path,
		UseTLS:           cfg.UseTLS,
		VerifySSL:        cfg.VerifySSL,
		HandshakeTimeout: cfg.HandshakeTimeout,
	})
	auth := link.APIKeyAuthenticator{Key: cfg.APIKey, Timeout: cfg.AuthTimeout}
	return link.New(dialer, auth, link.Options{
		Backoff:           cfg.Backoff.Policy(),
		SharedAuthBackoff: cfg.SharedAuthBackoff,
		KeepaliveInterval: cfg.KeepaliveInterval,
		KeepaliveTimeout:  cfg.CallTimeout,
	}, log)
}
