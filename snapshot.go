package exporter

import "sync/atomic"

// Counts holds the per-run state tallies derived from highstate output.
type Counts struct {
	TotalStates   int
	NonHighStates int
	ErrorStates   int
}

// Snapshot is the result of one collection run. Snapshots are values: the
// store hands out copies, so a reader can never see a later run's fields.
type Snapshot struct {
	Counts
	LastRunUnix int64
	Valid       bool
}

// Store holds the latest snapshot. The poller is the only writer; any number
// of scrape handlers may call Load concurrently without locking.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns a store holding the empty, invalid placeholder.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&Snapshot{})
	return s
}

// Publish replaces the current snapshot. Invalid snapshots are rejected so a
// failed run can never hide a previous good one. LastRunUnix never moves
// backwards.
func (s *Store) Publish(snap Snapshot) bool {
	if !snap.Valid {
		return false
	}

	for {
		prev := s.current.Load()
		if snap.LastRunUnix < prev.LastRunUnix {
			snap.LastRunUnix = prev.LastRunUnix
		}
		next := snap
		if s.current.CompareAndSwap(prev, &next) {
			return true
		}
	}
}

// Load returns a copy of the current snapshot.
func (s *Store) Load() Snapshot {
	return *s.current.Load()
}
