package snapshot

import "sync/atomic"

// Store holds the current snapshot. One writer publishes, any number of
// readers read; a reader sees a whole snapshot or none.
type Store struct {
	current atomic.Pointer[Snapshot]
}

func NewStore() *Store {
	return &Store{}
}

// Publish replaces the current snapshot.
func (s *Store) Publish(snap *Snapshot) {
	s.current.Store(snap)
}

// Read returns the current snapshot; ok is false until the first publish.
func (s *Store) Read() (snap *Snapshot, ok bool) {
	snap = s.current.Load()
	return snap, snap != nil
}
