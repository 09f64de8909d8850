package registers

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/truenas-collector/pkg/collector"
	"github.com/truenas-collector/pkg/config"
)

type Module struct {
	Enabled bool
	Name    string
	NewFunc func() []collector.Domain
}

// modules 指标域开关表，share 一个开关对应 SMB 与 NFS 两个域
func modules(c config.CollectorConfig, callTimeout time.Duration) []Module {
	one := func(newFn func(time.Duration) collector.Domain) func() []collector.Domain {
		return func() []collector.Domain { return []collector.Domain{newFn(callTimeout)} }
	}
	return []Module{
		{Enabled: c.Pool, Name: "pool", NewFunc: one(collector.NewPoolDomain)},
		{Enabled: c.Dataset, Name: "dataset", NewFunc: one(collector.NewDatasetDomain)},
		{Enabled: c.Disk, Name: "disk", NewFunc: one(collector.NewDiskDomain)},
		{Enabled: c.Smart, Name: "smart", NewFunc: one(collector.NewSmartDomain)},
		{Enabled: c.Share, Name: "share", NewFunc: func() []collector.Domain {
			return []collector.Domain{
				collector.NewSMBShareDomain(callTimeout),
				collector.NewNFSShareDomain(callTimeout),
			}
		}},
		{Enabled: c.CloudSync, Name: "cloud_sync", NewFunc: one(collector.NewCloudSyncDomain)},
		{Enabled: c.SnapshotTask, Name: "snapshot_task", NewFunc: one(collector.NewSnapshotTaskDomain)},
		{Enabled: c.Alert, Name: "alert", NewFunc: one(collector.NewAlertDomain)},
		{Enabled: c.SystemInfo, Name: "system_info", NewFunc: one(collector.NewSystemInfoDomain)},
		{Enabled: c.Reporting, Name: "reporting", NewFunc: one(collector.NewReportingDomain)},
		{Enabled: c.App, Name: "app", NewFunc: one(collector.NewAppDomain)},
		{Enabled: c.NetworkInterface, Name: "network_interface", NewFunc: one(collector.NewNetworkInterfaceDomain)},
		{Enabled: c.Service, Name: "service", NewFunc: one(collector.NewServiceDomain)},
	}
}

// RegisterDomains 指标域注册统一入口：按开关循环注册，返回所有已注册的域
func RegisterDomains(agent Agent, cfg *config.Config, log *zap.Logger) ([]collector.Domain, error) {
	var registered []collector.Domain
	for _, m := range modules(cfg.Monitor.Collectors, cfg.TrueNAS.CallTimeout) {
		if !m.Enabled {
			log.Debug("collector disabled", zap.String("name", m.Name))
			continue
		}
		for _, d := range m.NewFunc() {
			agent.Register(d)
			registered = append(registered, d)
		}
		log.Debug("registered collector", zap.String("name", m.Name))
	}
	if len(registered) == 0 {
		return nil, fmt.Errorf("no collectors enabled; check monitor.collectors")
	}

	names := make([]string, 0, len(registered))
	for _, d := range registered {
		names = append(names, d.Name())
	}
	log.Info("all enabled collectors registered", zap.Strings("enabled_collectors", names))
	return registered, nil
}
