package collector

import (
	"context"
	"strconv"
	"time"

	"github.com/truenas-collector/pkg/rpc"
	"github.com/truenas-collector/pkg/snapshot"
	"github.com/truenas-collector/pkg/truenas"
)

// ---------- cloudsync ----------

type cloudSyncDomain struct{ timeout time.Duration }

func NewCloudSyncDomain(callTimeout time.Duration) Domain {
	return &cloudSyncDomain{timeout: callTimeout}
}

func (d *cloudSyncDomain) Name() string { return DomainCloudSync }

func (d *cloudSyncDomain) Collect(ctx context.Context, c rpc.Caller, now time.Time) ([]snapshot.Sample, error) {
	tasks, err := truenas.Query[truenas.CloudSync](ctx, c, "cloudsync.query", nil, d.timeout)
	if err != nil {
		return nil, err
	}
	s := &sampler{now: now}
	for _, t := range tasks {
		id := strconv.Itoa(t.ID)
		// 从未运行过的任务没有 job
		state := "NEVER_RUN"
		if t.Job != nil && t.Job.State != "" {
			state = t.Job.State
		}
		s.add("cloud_sync_status", "Last job state of the cloud sync task, always 1.", 1,
			"id", id, "description", t.Description, "state", state)
		s.add("cloud_sync_enabled", "Whether the cloud sync task is enabled.", boolValue(t.Enabled),
			"id", id, "description", t.Description)
		if t.Job != nil && t.Job.Progress != nil && t.Job.Progress.Percent.Valid {
			s.add("cloud_sync_progress_percent", "Progress of the last cloud sync job.", t.Job.Progress.Percent.Value,
				"id", id, "description", t.Description)
		}
	}
	return s.samples, nil
}

// ---------- pool.snapshottask ----------

type snapshotTaskDomain struct{ timeout time.Duration }

func NewSnapshotTaskDomain(callTimeout time.Duration) Domain {
	return &snapshotTaskDomain{timeout: callTimeout}
}

func (d *snapshotTaskDomain) Name() string { return DomainSnapshotTask }

func (d *snapshotTaskDomain) Collect(ctx context.Context, c rpc.Caller, now time.Time) ([]snapshot.Sample, error) {
	tasks, err := truenas.Query[truenas.SnapshotTask](ctx, c, "pool.snapshottask.query", nil, d.timeout)
	if err != nil {
		return nil, err
	}
	s := &sampler{now: now}
	for _, t := range tasks {
		id := strconv.Itoa(t.ID)
		state := "UNKNOWN"
		if t.State != nil && t.State.State != "" {
			state = t.State.State
		}
		s.add("snapshot_task_status", "State of the periodic snapshot task, always 1.", 1,
			"id", id, "dataset", t.Dataset, "state", state)
		s.add("snapshot_task_enabled", "Whether the periodic snapshot task is enabled.", boolValue(t.Enabled),
			"id", id, "dataset", t.Dataset)
	}
	return s.samples, nil
}
