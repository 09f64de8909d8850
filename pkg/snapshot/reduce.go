package snapshot

import (
	"errors"
	"time"
)

// ReasonLinkDown is the stale reason used when no call was attempted.
const ReasonLinkDown = "link down"

var errLinkDown = errors.New(ReasonLinkDown)

// Outcome is the result of collecting one domain in a tick.
type Outcome struct {
	Domain  string
	Samples []Sample
	Err     error
}

// Reduce builds the next snapshot from the previous one and this tick's
// outcomes. A failed domain keeps its previous samples marked stale; a
// domain absent from outcomes is dropped. prev may be nil.
func Reduce(prev *Snapshot, up bool, outcomes []Outcome, now time.Time) *Snapshot {
	next := &Snapshot{
		Up:          up,
		CollectedAt: now,
		Domains:     make(map[string]Domain, len(outcomes)),
	}
	if prev != nil {
		next.Version = prev.Version + 1
	} else {
		next.Version = 1
	}

	for _, o := range outcomes {
		if o.Err == nil {
			next.Domains[o.Domain] = Domain{
				Name:        o.Domain,
				Freshness:   Fresh,
				Samples:     o.Samples,
				LastSuccess: now,
			}
			continue
		}

		d := Domain{Name: o.Domain, Freshness: StaleBecause(o.Err.Error())}
		if prev != nil {
			if old, ok := prev.Domains[o.Domain]; ok {
				d.Samples = old.Samples
				d.LastSuccess = old.LastSuccess
			}
		}
		next.Domains[o.Domain] = d
	}
	return next
}

// LinkDown reduces a tick in which the link was not ready: every domain is
// carried over stale with the "link down" reason.
func LinkDown(prev *Snapshot, domains []string, now time.Time) *Snapshot {
	outcomes := make([]Outcome, len(domains))
	for i, d := range domains {
		outcomes[i] = Outcome{Domain: d, Err: errLinkDown}
	}
	return Reduce(prev, false, outcomes, now)
}
