package collector

import (
	"context"
	"time"

	"github.com/truenas-collector/pkg/rpc"
	"github.com/truenas-collector/pkg/snapshot"
	"github.com/truenas-collector/pkg/truenas"
)

// ---------- system.info ----------

type systemInfoDomain struct{ timeout time.Duration }

func NewSystemInfoDomain(callTimeout time.Duration) Domain {
	return &systemInfoDomain{timeout: callTimeout}
}

func (d *systemInfoDomain) Name() string { return DomainSystemInfo }

var loadPeriods = []string{"1m", "5m", "15m"}

func (d *systemInfoDomain) Collect(ctx context.Context, c rpc.Caller, now time.Time) ([]snapshot.Sample, error) {
	info, err := truenas.Get[truenas.SystemInfo](ctx, c, "system.info", nil, d.timeout)
	if err != nil {
		return nil, err
	}
	s := &sampler{now: now}
	s.add("system_info", "Appliance identity, always 1.", 1,
		"version", info.Version, "hostname", info.Hostname, "model", info.SystemProduct)
	if info.UptimeSeconds.Valid {
		s.add("system_uptime_seconds", "Appliance uptime.", info.UptimeSeconds.Value)
	}
	if info.Physmem.Valid {
		s.add("system_memory_total_bytes", "Physical memory of the appliance.", info.Physmem.Value)
	}
	for i, v := range info.Loadavg {
		if i >= len(loadPeriods) {
			break
		}
		s.add("system_load_average", "Load average.", v, "period", loadPeriods[i])
	}
	return s.samples, nil
}

// ---------- apps / interfaces / services ----------

type appDomain struct{ timeout time.Duration }

func NewAppDomain(callTimeout time.Duration) Domain {
	return &appDomain{timeout: callTimeout}
}

func (d *appDomain) Name() string { return DomainApp }

func (d *appDomain) Collect(ctx context.Context, c rpc.Caller, now time.Time) ([]snapshot.Sample, error) {
	apps, err := truenas.Query[truenas.App](ctx, c, "app.query", nil, d.timeout)
	if err != nil {
		return nil, err
	}
	s := &sampler{now: now}
	for _, a := range apps {
		s.add("app_status", "Whether the app is running.", boolValue(a.State == "RUNNING"), "app", a.Name)
		s.add("app_update_available", "Whether an app upgrade is available.", boolValue(a.UpgradeAvailable), "app", a.Name)
	}
	return s.samples, nil
}

type networkInterfaceDomain struct{ timeout time.Duration }

func NewNetworkInterfaceDomain(callTimeout time.Duration) Domain {
	return &networkInterfaceDomain{timeout: callTimeout}
}

func (d *networkInterfaceDomain) Name() string { return DomainNetworkInterface }

func (d *networkInterfaceDomain) Collect(ctx context.Context, c rpc.Caller, now time.Time) ([]snapshot.Sample, error) {
	ifaces, err := truenas.Query[truenas.Interface](ctx, c, "interface.query", nil, d.timeout)
	if err != nil {
		return nil, err
	}
	s := &sampler{now: now}
	for _, i := range ifaces {
		s.add("network_interface_info", "Interface link state, always 1.", 1,
			"interface", i.Name, "link_state", i.State.LinkState)
		s.add("network_interface_up", "Whether the interface link is up.",
			boolValue(i.State.LinkState == "LINK_STATE_UP"), "interface", i.Name)
	}
	return s.samples, nil
}

type serviceDomain struct{ timeout time.Duration }

func NewServiceDomain(callTimeout time.Duration) Domain {
	return &serviceDomain{timeout: callTimeout}
}

func (d *serviceDomain) Name() string { return DomainService }

func (d *serviceDomain) Collect(ctx context.Context, c rpc.Caller, now time.Time) ([]snapshot.Sample, error) {
	services, err := truenas.Query[truenas.Service](ctx, c, "service.query", nil, d.timeout)
	if err != nil {
		return nil, err
	}
	s := &sampler{now: now}
	for _, svc := range services {
		s.add("service_status", "Whether the service is running.", boolValue(svc.State == "RUNNING"), "service", svc.Service)
		s.add("service_enabled", "Whether the service starts on boot.", boolValue(svc.Enable), "service", svc.Service)
	}
	return s.samples, nil
}
