package status

import (
	"sync"

	"github.com/obsidianstack/ctrlperf/agent/internal/analysis"
)

// Store is a thread-safe bounded history of cycle reports, newest last.
type Store struct {
	mu       sync.RWMutex
	reports  []*analysis.Report
	limit    int
	outcomes map[string]uint64
	lastRes  *analysis.Report // newest report that carries a Result
	failures int              // consecutive failed cycles
}

// NewStore creates a Store keeping at most limit reports.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1
	}
	return &Store{
		reports:  make([]*analysis.Report, 0, limit),
		limit:    limit,
		outcomes: make(map[string]uint64),
	}
}

// Put appends rep, evicting the oldest report when full.
// Callers must not modify rep after calling Put.
func (s *Store) Put(rep *analysis.Report) {
	if rep == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.reports) == s.limit {
		copy(s.reports, s.reports[1:])
		s.reports = s.reports[:len(s.reports)-1]
	}
	s.reports = append(s.reports, rep)
	s.outcomes[rep.Outcome()]++
	if rep.Result != nil {
		s.lastRes = rep
	}
	if rep.OK() {
		s.failures = 0
	} else {
		s.failures++
	}
}

// Latest returns the newest report.
func (s *Store) Latest() (*analysis.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.reports) == 0 {
		return nil, false
	}
	return s.reports[len(s.reports)-1], true
}

// LatestResult returns the newest report with computed metrics. It may be
// older than Latest when recent cycles failed before computing.
func (s *Store) LatestResult() (*analysis.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRes, s.lastRes != nil
}

// List returns up to limit of the newest reports, oldest first. A
// non-positive limit returns the whole history.
func (s *Store) List(limit int) []*analysis.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && limit < len(s.reports) {
		start = len(s.reports) - limit
	}
	out := make([]*analysis.Report, len(s.reports)-start)
	copy(out, s.reports[start:])
	return out
}

// Outcomes returns the number of cycles per outcome since start.
func (s *Store) Outcomes() map[string]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]uint64, len(s.outcomes))
	for k, v := range s.outcomes {
		out[k] = v
	}
	return out
}

// ConsecutiveFailures returns the number of failed cycles since the last
// successful one.
func (s *Store) ConsecutiveFailures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures
}

// Count returns the number of reports held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}
