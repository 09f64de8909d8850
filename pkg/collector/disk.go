package collector

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/truenas-collector/pkg/rpc"
	"github.com/truenas-collector/pkg/snapshot"
	"github.com/truenas-collector/pkg/truenas"
)

// ---------- disk ----------

type diskDomain struct{ timeout time.Duration }

func NewDiskDomain(callTimeout time.Duration) Domain {
	return &diskDomain{timeout: callTimeout}
}

func (d *diskDomain) Name() string { return DomainDisk }

func (d *diskDomain) Collect(ctx context.Context, c rpc.Caller, now time.Time) ([]snapshot.Sample, error) {
	disks, err := truenas.Query[truenas.Disk](ctx, c, "disk.query", nil, d.timeout)
	if err != nil {
		return nil, err
	}
	s := &sampler{now: now}
	for _, dk := range disks {
		if dk.Name == "" {
			continue
		}
		s.add("disk_info", "Disk identity, always 1.", 1, "disk", dk.Name, "serial", dk.Serial, "model", dk.Model)
		if dk.Size.Valid {
			s.add("disk_size_bytes", "Disk size in bytes.", dk.Size.Value, "disk", dk.Name)
		}
	}
	return s.samples, nil
}

// ---------- smart ----------

type smartDomain struct{ timeout time.Duration }

func NewSmartDomain(callTimeout time.Duration) Domain {
	return &smartDomain{timeout: callTimeout}
}

func (d *smartDomain) Name() string { return DomainSmart }

func (d *smartDomain) Collect(ctx context.Context, c rpc.Caller, now time.Time) ([]snapshot.Sample, error) {
	results, err := truenas.Query[truenas.SmartResult](ctx, c, "smart.test.results", nil, d.timeout)
	if err != nil {
		return nil, err
	}

	s := &sampler{now: now}
	for _, r := range results {
		disk := r.DiskName()
		if disk == "" || len(r.Tests) == 0 {
			continue
		}

		// 每种测试类型只保留 lifetime 最大（最新）的一条
		latest := make(map[string]truenas.SmartTest)
		var newest truenas.SmartTest
		for i, t := range r.Tests {
			if cur, ok := latest[t.Description]; !ok || t.Lifetime.Value > cur.Lifetime.Value {
				latest[t.Description] = t
			}
			if i == 0 || t.Lifetime.Value > newest.Lifetime.Value {
				newest = t
			}
		}

		types := make([]string, 0, len(latest))
		for k := range latest {
			types = append(types, k)
		}
		sort.Strings(types)

		for _, typ := range types {
			t := latest[typ]
			s.add("smart_test_status", "Result of the newest SMART test of this type, 0 ok or running, 1 failed.",
				boolValue(smartFailed(t)), "disk", disk, "test_type", typ)
			if t.Lifetime.Valid {
				s.add("smart_test_lifetime_hours", "Disk lifetime hours when the test ran.",
					t.Lifetime.Value, "disk", disk, "test_type", typ)
			}
			if t.PowerOnHoursAgo.Valid {
				at := now.Add(-time.Duration(t.PowerOnHoursAgo.Value * float64(time.Hour)))
				s.add("smart_test_timestamp_seconds", "Approximate time the test ran.",
					float64(at.Unix()), "disk", disk, "test_type", typ)
			}
		}
		// lifetime 只是测试时的通电时长，需加上 power_on_hours_ago 才是当前值
		if newest.Lifetime.Valid && newest.PowerOnHoursAgo.Valid {
			s.add("disk_power_on_hours", "Disk power on hours derived from SMART tests.",
				newest.Lifetime.Value+newest.PowerOnHoursAgo.Value, "disk", disk)
		}
	}
	return s.samples, nil
}

func smartFailed(t truenas.SmartTest) bool {
	status := t.Status
	if status == "" {
		status = t.StatusVerbose
	}
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "SUCCESS", "RUNNING", "COMPLETED WITHOUT ERROR":
		return false
	}
	return true
}
