package session

import (
	"sync"

	"TSNSpectra/internal/model"
)

// Store is the bounded, append-only sample store of one traffic class.
// Appends past capacity are refused and counted, never grown into.
type Store struct {
	mu sync.Mutex

	class      uint8
	capacity   int
	obs        []model.Observation
	totalBytes uint64
	firstTs    uint64
	lastTs     uint64
	txCount    uint64
	txBytes    uint64
	dropped    uint64
}

// NewStore creates an empty store for class with room for capacity observations.
func NewStore(class uint8, capacity int) *Store {
	initial := capacity
	if initial > 4096 {
		initial = 4096
	}
	return &Store{
		class:    class,
		capacity: capacity,
		obs:      make([]model.Observation, 0, initial),
	}
}

// Append records an observation. It returns false when the store is full and
// the observation was dropped.
func (s *Store) Append(o model.Observation) bool {
	ok, _ := s.append(o)
	return ok
}

// append stores o and returns the drop count after the call.
func (s *Store) append(o model.Observation) (bool, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.obs) >= s.capacity {
		s.dropped++
		return false, s.dropped
	}
	if len(s.obs) == 0 {
		s.firstTs = o.TimestampNs
	}
	s.obs = append(s.obs, o)
	s.lastTs = o.TimestampNs
	s.totalBytes += uint64(o.Length)
	return true, s.dropped
}

// RecordTx counts one frame this process injected for the class.
func (s *Store) RecordTx(bytes int) {
	s.mu.Lock()
	s.txCount++
	s.txBytes += uint64(bytes)
	s.mu.Unlock()
}

// Len returns the number of stored observations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.obs)
}

// Stats returns the running aggregates without copying observations.
func (s *Store) Stats() (observations int, bytes, tx, dropped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.obs), s.totalBytes, s.txCount, s.dropped
}

// Snapshot returns a deep copy of the store.
func (s *Store) Snapshot() model.ClassData {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.Observation, len(s.obs))
	copy(copied, s.obs)
	return model.ClassData{
		Class:        s.class,
		Observations: copied,
		TotalBytes:   s.totalBytes,
		FirstTs:      s.firstTs,
		LastTs:       s.lastTs,
		TxCount:      s.txCount,
		TxBytes:      s.txBytes,
		Dropped:      s.dropped,
	}
}
