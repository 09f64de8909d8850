package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/truenas-collector/pkg/rpc"
	"github.com/truenas-collector/pkg/snapshot"
)

// Domain 一个独立的指标域，失败互不影响
type Domain interface {
	Name() string
	// Collect issues the domain's calls through c and returns fresh samples.
	Collect(ctx context.Context, c rpc.Caller, now time.Time) ([]snapshot.Sample, error)
}

// DomainError scopes a collection failure to one domain.
type DomainError struct {
	Domain string
	Err    error
}

func (e *DomainError) Error() string { return fmt.Sprintf("collect %s: %v", e.Domain, e.Err) }

func (e *DomainError) Unwrap() error { return e.Err }

// Domain names, also used as config keys and log fields.
const (
	DomainPool             = "pool"
	DomainDataset          = "dataset"
	DomainDisk             = "disk"
	DomainSmart            = "smart"
	DomainShareSMB         = "share_smb"
	DomainShareNFS         = "share_nfs"
	DomainCloudSync        = "cloud_sync"
	DomainSnapshotTask     = "snapshot_task"
	DomainAlert            = "alert"
	DomainSystemInfo       = "system_info"
	DomainReporting        = "reporting"
	DomainApp              = "app"
	DomainNetworkInterface = "network_interface"
	DomainService          = "service"
)

// sampler accumulates samples of one collection with a shared timestamp.
type sampler struct {
	now     time.Time
	samples []snapshot.Sample
}

func (s *sampler) add(name, help string, value float64, kv ...string) {
	s.samples = append(s.samples, snapshot.NewSample(name, help, value, s.now, kv...))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
