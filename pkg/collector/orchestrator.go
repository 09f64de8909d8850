package collector

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/truenas-collector/pkg/link"
	"github.com/truenas-collector/pkg/rpc"
	"github.com/truenas-collector/pkg/snapshot"
)

// Link is the part of the connection supervisor the orchestrator reads.
type Link interface {
	CurrentLink() link.State
	ActiveCaller() (rpc.Caller, bool)
}

// Recorder receives per-domain collection outcomes, e.g. for self metrics.
type Recorder interface {
	ObserveCollect(domain string, took time.Duration, err error)
}

// Options 采集调度参数
type Options struct {
	Interval time.Duration
	// DomainTimeout bounds one domain's calls in a tick. Per call timeouts
	// are given to each domain when it is built.
	DomainTimeout time.Duration
}

// Orchestrator runs the collection ticks and publishes snapshots.
type Orchestrator struct {
	link  Link
	store *snapshot.Store
	opts  Options
	log   *zap.Logger
	rec   Recorder
	now   func() time.Time

	mu      sync.Mutex
	domains []Domain

	cancel context.CancelFunc
	done   chan struct{}
}

func NewOrchestrator(l Link, store *snapshot.Store, opts Options, rec Recorder, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		link:  l,
		store: store,
		opts:  opts,
		log:   log,
		rec:   rec,
		now:   time.Now,
	}
}

// Register adds a domain; call before Start.
func (o *Orchestrator) Register(d Domain) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.domains = append(o.domains, d)
}

// Domains returns the registered domain names.
func (o *Orchestrator) Domains() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, len(o.domains))
	for i, d := range o.domains {
		names[i] = d.Name()
	}
	return names
}

// Start runs a tick immediately and then every Interval until ctx ends or
// Shutdown is called.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)
	o.done = make(chan struct{})

	o.log.Info("collection started",
		zap.Duration("interval", o.opts.Interval),
		zap.Strings("domains", o.Domains()))

	go func() {
		defer close(o.done)
		ticker := time.NewTicker(o.opts.Interval)
		defer ticker.Stop()

		o.Tick(ctx)
		for {
			select {
			case <-ticker.C:
				o.Tick(ctx)
			case <-ctx.Done():
				o.log.Info("collection stopped", zap.Error(ctx.Err()))
				return
			}
		}
	}()
}

// Shutdown stops the ticker and waits for an in-flight tick to finish.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if o.cancel == nil {
		return nil
	}
	o.cancel()
	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick runs one collection round and publishes the resulting snapshot. A tick
// cancelled before its calls finish publishes nothing and returns the previous
// snapshot.
func (o *Orchestrator) Tick(ctx context.Context) *snapshot.Snapshot {
	o.mu.Lock()
	domains := append([]Domain(nil), o.domains...)
	o.mu.Unlock()

	prev, _ := o.store.Read()
	started := o.now()

	if state := o.link.CurrentLink(); state != link.Ready {
		return o.publishLinkDown(prev, domains, started, state.String())
	}
	caller, ok := o.link.ActiveCaller()
	if !ok {
		return o.publishLinkDown(prev, domains, started, "no active engine")
	}

	outcomes := make([]snapshot.Outcome, len(domains))
	var g errgroup.Group
	for i, d := range domains {
		g.Go(func() error {
			outcomes[i] = o.collectDomain(ctx, d, caller, started)
			return nil
		})
	}
	_ = g.Wait()

	// 关停时放弃本轮结果，避免所有指标域被标记为 stale
	if ctx.Err() != nil {
		o.log.Debug("tick abandoned", zap.Error(ctx.Err()))
		return prev
	}

	snap := snapshot.Reduce(prev, true, outcomes, started)
	o.store.Publish(snap)

	stale := 0
	for _, oc := range outcomes {
		if oc.Err != nil {
			stale++
		}
	}
	o.log.Debug("snapshot published",
		zap.Uint64("version", snap.Version),
		zap.Int("domains", len(outcomes)),
		zap.Int("stale", stale),
		zap.Duration("took", o.now().Sub(started)))
	return snap
}

func (o *Orchestrator) collectDomain(ctx context.Context, d Domain, caller rpc.Caller, now time.Time) snapshot.Outcome {
	dctx := ctx
	if o.opts.DomainTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, o.opts.DomainTimeout)
		defer cancel()
	}

	start := time.Now()
	samples, err := d.Collect(dctx, caller, now)
	took := time.Since(start)

	if o.rec != nil {
		o.rec.ObserveCollect(d.Name(), took, err)
	}
	if err != nil {
		err = &DomainError{Domain: d.Name(), Err: err}
		o.log.Warn("domain collection failed",
			zap.String("collector", d.Name()),
			zap.Stringer("kind", rpc.KindOf(err)),
			zap.Duration("took", took),
			zap.Error(err))
		return snapshot.Outcome{Domain: d.Name(), Err: err}
	}
	return snapshot.Outcome{Domain: d.Name(), Samples: samples}
}

func (o *Orchestrator) publishLinkDown(prev *snapshot.Snapshot, domains []Domain, now time.Time, state string) *snapshot.Snapshot {
	names := make([]string, len(domains))
	for i, d := range domains {
		names[i] = d.Name()
	}
	snap := snapshot.LinkDown(prev, names, now)
	o.store.Publish(snap)
	o.log.Debug("link not ready, published stale snapshot",
		zap.String("link", state),
		zap.Uint64("version", snap.Version))
	return snap
}
