package collector

import (
	"context"
	"strings"
	"time"

	"github.com/truenas-collector/pkg/rpc"
	"github.com/truenas-collector/pkg/snapshot"
	"github.com/truenas-collector/pkg/truenas"
)

// ---------- pool ----------

type poolDomain struct{ timeout time.Duration }

func NewPoolDomain(callTimeout time.Duration) Domain {
	return &poolDomain{timeout: callTimeout}
}

func (d *poolDomain) Name() string { return DomainPool }

func (d *poolDomain) Collect(ctx context.Context, c rpc.Caller, now time.Time) ([]snapshot.Sample, error) {
	pools, err := truenas.Query[truenas.Pool](ctx, c, "pool.query", nil, d.timeout)
	if err != nil {
		return nil, err
	}

	s := &sampler{now: now}
	for _, p := range pools {
		if p.Name == "" {
			continue
		}
		s.add("pool_healthy", "Whether the pool reports itself healthy.", boolValue(p.Healthy), "pool", p.Name)
		if p.Status != "" {
			s.add("pool_status", "Pool status, always 1.", 1, "pool", p.Name, "status", p.Status)
		}
		if p.Size.Valid {
			s.add("pool_size_bytes", "Pool capacity in bytes.", p.Size.Value, "pool", p.Name)
		}
		if p.Allocated.Valid {
			s.add("pool_allocated_bytes", "Allocated pool space in bytes.", p.Allocated.Value, "pool", p.Name)
		}
		if p.Free.Valid {
			s.add("pool_free_bytes", "Free pool space in bytes.", p.Free.Value, "pool", p.Name)
		}
		if p.Scan != nil {
			s.add("pool_scrub_errors", "Errors found by the last scan.", p.Scan.Errors.Value, "pool", p.Name)
			if p.Scan.EndTime.Valid {
				s.add("pool_last_scrub_timestamp_seconds", "End time of the last scan.",
					float64(p.Scan.EndTime.Time.Unix()), "pool", p.Name)
			}
		}
		for _, v := range p.Topology.All() {
			vdevErrors(s, p.Name, v)
		}
	}
	return s.samples, nil
}

func vdevErrors(s *sampler, pool string, v truenas.Vdev) {
	if v.Stats != nil {
		const help = "Vdev error counters by type."
		name := v.Label()
		s.add("pool_vdev_errors", help, v.Stats.ReadErrors.Value, "pool", pool, "vdev", name, "type", "read")
		s.add("pool_vdev_errors", help, v.Stats.WriteErrors.Value, "pool", pool, "vdev", name, "type", "write")
		s.add("pool_vdev_errors", help, v.Stats.ChecksumErrors.Value, "pool", pool, "vdev", name, "type", "checksum")
	}
	for _, child := range v.Children {
		vdevErrors(s, pool, child)
	}
}

// ---------- dataset ----------

type datasetDomain struct{ timeout time.Duration }

func NewDatasetDomain(callTimeout time.Duration) Domain {
	return &datasetDomain{timeout: callTimeout}
}

func (d *datasetDomain) Name() string { return DomainDataset }

var datasetSelect = []string{"id", "name", "pool", "used", "available", "compressratio", "encrypted"}

func (d *datasetDomain) Collect(ctx context.Context, c rpc.Caller, now time.Time) ([]snapshot.Sample, error) {
	params := []any{[]any{}, map[string]any{"select": datasetSelect}}
	datasets, err := truenas.Query[truenas.Dataset](ctx, c, "pool.dataset.query", params, d.timeout)
	if err != nil {
		return nil, err
	}

	s := &sampler{now: now}
	for _, ds := range datasets {
		name := ds.Name
		if name == "" {
			name = ds.ID
		}
		if name == "" {
			continue
		}
		pool := ds.Pool
		if pool == "" {
			pool, _, _ = strings.Cut(name, "/")
		}
		if ds.Used.Valid {
			s.add("dataset_used_bytes", "Space used by the dataset.", ds.Used.Value, "dataset", name, "pool", pool)
		}
		if ds.Available.Valid {
			s.add("dataset_available_bytes", "Space available to the dataset.", ds.Available.Value, "dataset", name, "pool", pool)
		}
		if ds.CompressRatio.Valid {
			s.add("dataset_compression_ratio", "Compression ratio of the dataset.", ds.CompressRatio.Value, "dataset", name, "pool", pool)
		}
		s.add("dataset_encrypted", "Whether the dataset is encrypted.", boolValue(ds.Encrypted), "dataset", name, "pool", pool)
	}
	return s.samples, nil
}
