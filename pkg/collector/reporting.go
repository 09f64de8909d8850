package collector

import (
	"context"
	"time"

	"github.com/truenas-collector/pkg/rpc"
	"github.com/truenas-collector/pkg/snapshot"
	"github.com/truenas-collector/pkg/truenas"
)

// reportingWindow is how far back reporting.get_data looks.
const reportingWindow = 5 * time.Minute

type reportingDomain struct{ timeout time.Duration }

func NewReportingDomain(callTimeout time.Duration) Domain {
	return &reportingDomain{timeout: callTimeout}
}

func (d *reportingDomain) Name() string { return DomainReporting }

func (d *reportingDomain) Collect(ctx context.Context, c rpc.Caller, now time.Time) ([]snapshot.Sample, error) {
	graphs, err := truenas.Query[truenas.ReportingGraph](ctx, c, "reporting.graphs", nil, d.timeout)
	if err != nil {
		return nil, err
	}

	queries := reportingQueries(graphs)
	if len(queries) == 0 {
		return nil, nil
	}

	params := []any{queries, map[string]any{"start": now.Add(-reportingWindow).Unix()}}
	data, err := truenas.Query[truenas.ReportingData](ctx, c, "reporting.get_data", params, d.timeout)
	if err != nil {
		return nil, err
	}

	s := &sampler{now: now}
	for _, rd := range data {
		switch rd.Name {
		case "cpu":
			eachColumn(rd, func(col string, v float64) {
				s.add("cpu_usage_percent", "CPU usage by mode.", v, "mode", col)
			})
		case "cputemp":
			eachColumn(rd, func(col string, v float64) {
				s.add("cpu_temperature_celsius", "CPU temperature.", v, "cpu", col)
			})
		case "memory":
			eachColumn(rd, func(col string, v float64) {
				s.add("memory_bytes", "Memory by state.", v, "state", col)
			})
		case "disktemp":
			if v, ok := diskTemperature(rd); ok {
				s.add("disk_temperature_celsius", "Disk temperature.", v, "device", rd.Identifier)
			}
		case "disk":
			if v, ok := rd.Last("reads"); ok {
				s.add("disk_read_bytes_per_second", "Disk read throughput.", v, "device", rd.Identifier)
			}
			if v, ok := rd.Last("writes"); ok {
				s.add("disk_write_bytes_per_second", "Disk write throughput.", v, "device", rd.Identifier)
			}
		case "interface":
			if v, ok := rd.Last("received"); ok {
				s.add("network_receive_bytes_per_second", "Interface receive throughput.", v, "interface", rd.Identifier)
			}
			if v, ok := rd.Last("sent"); ok {
				s.add("network_transmit_bytes_per_second", "Interface transmit throughput.", v, "interface", rd.Identifier)
			}
		}
	}
	return s.samples, nil
}

// reportingQueries picks the graphs this domain understands.
func reportingQueries(graphs []truenas.ReportingGraph) []truenas.ReportingQuery {
	var out []truenas.ReportingQuery
	for _, g := range graphs {
		switch g.Name {
		case "cpu", "cputemp", "memory":
			out = append(out, truenas.ReportingQuery{Name: g.Name})
		case "disktemp", "disk", "interface":
			for _, id := range g.Identifiers {
				out = append(out, truenas.ReportingQuery{Name: g.Name, Identifier: id})
			}
		}
	}
	return out
}

func eachColumn(rd truenas.ReportingData, fn func(col string, v float64)) {
	for _, col := range rd.Legend {
		if col == "time" {
			continue
		}
		if v, ok := rd.Last(col); ok {
			fn(col, v)
		}
	}
}

func diskTemperature(rd truenas.ReportingData) (float64, bool) {
	for _, col := range []string{"temperature_value", "value"} {
		if v, ok := rd.Last(col); ok {
			return v, true
		}
	}
	if n := len(rd.Legend); n > 0 && rd.Legend[n-1] != "time" {
		return rd.Last(rd.Legend[n-1])
	}
	return 0, false
}
