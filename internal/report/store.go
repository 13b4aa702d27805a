package report

import (
	"sync"

	"TSNSpectra/internal/model"
)

const defaultHistory = 32

// Store keeps the latest reports in memory, bounded to a fixed number
// of sessions.
type Store struct {
	mu      sync.RWMutex
	max     int
	order   []string
	reports map[string]*model.Report
}

// NewStore creates a store remembering up to max reports.
func NewStore(max int) *Store {
	if max <= 0 {
		max = defaultHistory
	}
	return &Store{max: max, reports: make(map[string]*model.Report)}
}

// Put records r as the latest report. It also satisfies model.Writer so that
// the store can be handed to the session manager like any other writer.
func (s *Store) Put(r *model.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reports[r.SessionID]; ok {
		for i, id := range s.order {
			if id == r.SessionID {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.reports[r.SessionID] = r
	s.order = append(s.order, r.SessionID)
	for len(s.order) > s.max {
		delete(s.reports, s.order[0])
		s.order = s.order[1:]
	}
}

// Write implements model.Writer.
func (s *Store) Write(r *model.Report) error {
	s.Put(r)
	return nil
}

// Name implements model.Writer.
func (s *Store) Name() string {
	return "memory"
}

// Latest returns the most recent report.
func (s *Store) Latest() (*model.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return nil, false
	}
	return s.reports[s.order[len(s.order)-1]], true
}

// Get returns the report of a session.
func (s *Store) Get(sessionID string) (*model.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[sessionID]
	return r, ok
}

// IDs lists the remembered sessions, oldest first.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}
