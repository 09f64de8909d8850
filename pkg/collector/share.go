package collector

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/truenas-collector/pkg/rpc"
	"github.com/truenas-collector/pkg/snapshot"
	"github.com/truenas-collector/pkg/truenas"
)

// ---------- sharing.smb ----------

type smbShareDomain struct{ timeout time.Duration }

func NewSMBShareDomain(callTimeout time.Duration) Domain {
	return &smbShareDomain{timeout: callTimeout}
}

func (d *smbShareDomain) Name() string { return DomainShareSMB }

func (d *smbShareDomain) Collect(ctx context.Context, c rpc.Caller, now time.Time) ([]snapshot.Sample, error) {
	shares, err := truenas.Query[truenas.SMBShare](ctx, c, "sharing.smb.query", nil, d.timeout)
	if err != nil {
		return nil, err
	}
	s := &sampler{now: now}
	for _, sh := range shares {
		s.add("share_smb_enabled", "Whether the SMB share is enabled.", boolValue(sh.Enabled),
			"id", strconv.Itoa(sh.ID), "name", sh.Name, "path", sh.Path)
	}
	return s.samples, nil
}

// ---------- sharing.nfs ----------

type nfsShareDomain struct{ timeout time.Duration }

func NewNFSShareDomain(callTimeout time.Duration) Domain {
	return &nfsShareDomain{timeout: callTimeout}
}

func (d *nfsShareDomain) Name() string { return DomainShareNFS }

func (d *nfsShareDomain) Collect(ctx context.Context, c rpc.Caller, now time.Time) ([]snapshot.Sample, error) {
	shares, err := truenas.Query[truenas.NFSShare](ctx, c, "sharing.nfs.query", nil, d.timeout)
	if err != nil {
		return nil, err
	}
	s := &sampler{now: now}
	for _, sh := range shares {
		path := sh.Path
		if path == "" {
			path = strings.Join(sh.Paths, ",")
		}
		s.add("share_nfs_enabled", "Whether the NFS export is enabled.", boolValue(sh.Enabled),
			"id", strconv.Itoa(sh.ID), "path", path)
	}
	return s.samples, nil
}
