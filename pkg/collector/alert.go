package collector

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/truenas-collector/pkg/rpc"
	"github.com/truenas-collector/pkg/snapshot"
	"github.com/truenas-collector/pkg/truenas"
)

// 常见告警级别预置为 0，保证序列稳定存在
var alertLevels = []string{"CRITICAL", "ERROR", "WARNING", "INFO"}

type alertDomain struct{ timeout time.Duration }

func NewAlertDomain(callTimeout time.Duration) Domain {
	return &alertDomain{timeout: callTimeout}
}

func (d *alertDomain) Name() string { return DomainAlert }

type alertKey struct {
	level  string
	active bool
}

func (d *alertDomain) Collect(ctx context.Context, c rpc.Caller, now time.Time) ([]snapshot.Sample, error) {
	alerts, err := truenas.Query[truenas.Alert](ctx, c, "alert.list", nil, d.timeout)
	if err != nil {
		return nil, err
	}

	counts := make(map[alertKey]int)
	for _, level := range alertLevels {
		counts[alertKey{level, true}] = 0
		counts[alertKey{level, false}] = 0
	}

	s := &sampler{now: now}
	for _, a := range alerts {
		level := strings.ToUpper(a.Level)
		active := !a.Dismissed
		counts[alertKey{level, active}]++
		if a.UUID != "" {
			s.add("alert_info", "Alert present on the appliance, always 1.", 1,
				"uuid", a.UUID, "level", level, "klass", a.Klass, "active", strconv.FormatBool(active))
		}
	}

	keys := make([]alertKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].level != keys[j].level {
			return keys[i].level < keys[j].level
		}
		return !keys[i].active && keys[j].active
	})
	for _, k := range keys {
		s.add("alert_count", "Number of alerts by level and active state.", float64(counts[k]),
			"level", k.level, "active", strconv.FormatBool(k.active))
	}
	return s.samples, nil
}
