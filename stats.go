package exporter

import (
	"sync"
	"time"
)

// PollStats holds collection cycle statistics.
type PollStats struct {
	TotalCycles      int64
	SuccessfulCycles int64
	FailedCycles     int64
	SkippedTicks     int64
	LastDuration     time.Duration
	LastError        string
	LastSuccess      time.Time
}

// statsTracker provides thread-safe cycle statistics tracking.
type statsTracker struct {
	mu    sync.RWMutex
	stats PollStats
}

func (s *statsTracker) recordCycle(err error, duration time.Duration, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.TotalCycles++
	if err == nil {
		s.stats.SuccessfulCycles++
		s.stats.LastSuccess = at
		s.stats.LastError = ""
	} else {
		s.stats.FailedCycles++
		s.stats.LastError = err.Error()
	}
	s.stats.LastDuration = duration
}

func (s *statsTracker) recordSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.SkippedTicks++
}

func (s *statsTracker) snapshot() PollStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
