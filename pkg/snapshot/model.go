package snapshot

import (
	"sort"
	"time"
)

// Label is one name/value pair; a sample keeps its labels in order.
type Label struct {
	Name  string
	Value string
}

// Sample 单条指标样本，构造后不可修改
type Sample struct {
	Name       string
	Help       string
	Labels     []Label
	Value      float64
	ObservedAt time.Time
}

// NewSample builds a sample from alternating label name/value pairs.
func NewSample(name, help string, value float64, at time.Time, kv ...string) Sample {
	labels := make([]Label, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		labels = append(labels, Label{Name: kv[i], Value: kv[i+1]})
	}
	return Sample{Name: name, Help: help, Labels: labels, Value: value, ObservedAt: at}
}

// LabelNames returns the label names in order.
func (s Sample) LabelNames() []string {
	out := make([]string, len(s.Labels))
	for i, l := range s.Labels {
		out[i] = l.Name
	}
	return out
}

// LabelValues returns the label values in order.
func (s Sample) LabelValues() []string {
	out := make([]string, len(s.Labels))
	for i, l := range s.Labels {
		out[i] = l.Value
	}
	return out
}

// Label returns the value of the named label.
func (s Sample) Label(name string) (string, bool) {
	for _, l := range s.Labels {
		if l.Name == name {
			return l.Value, true
		}
	}
	return "", false
}

// Freshness of one domain's samples.
type Freshness struct {
	Stale  bool
	Reason string
}

// Fresh is the freshness of a domain collected in the current tick.
var Fresh = Freshness{}

// StaleBecause marks carried over samples.
func StaleBecause(reason string) Freshness {
	return Freshness{Stale: true, Reason: reason}
}

func (f Freshness) String() string {
	if !f.Stale {
		return "fresh"
	}
	return "stale(" + f.Reason + ")"
}

// Domain is the state of one metric domain inside a snapshot.
type Domain struct {
	Name      string
	Freshness Freshness
	Samples   []Sample
	// LastSuccess is zero if the domain has never been collected successfully.
	LastSuccess time.Time
}

// Snapshot 不可变的指标快照，通过 Store 原子发布
type Snapshot struct {
	Version     uint64
	Up          bool
	CollectedAt time.Time
	Domains     map[string]Domain
}

// DomainNames returns the domain names sorted.
func (s *Snapshot) DomainNames() []string {
	names := make([]string, 0, len(s.Domains))
	for n := range s.Domains {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Samples returns every sample of every domain, domains in name order.
func (s *Snapshot) Samples() []Sample {
	var out []Sample
	for _, n := range s.DomainNames() {
		out = append(out, s.Domains[n].Samples...)
	}
	return out
}

// Find returns the first sample with name whose labels include every given pair.
func (s *Snapshot) Find(name string, kv ...string) (Sample, bool) {
	for _, smp := range s.Samples() {
		if smp.Name != name {
			continue
		}
		match := true
		for i := 0; i+1 < len(kv); i += 2 {
			if v, ok := smp.Label(kv[i]); !ok || v != kv[i+1] {
				match = false
				break
			}
		}
		if match {
			return smp, true
		}
	}
	return Sample{}, false
}
