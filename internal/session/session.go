package session

import (
	"io"
	"sync"
	"sync/atomic"

	"TSNSpectra/internal/model"

	"github.com/sirupsen/logrus"
)

const defaultInputBuffer = 65536

// Session owns the eight sample stores of one measurement run. Capture
// sources push observations through Input; a single consumer goroutine
// appends them to the stores. Transmitters account for injected frames with
// RecordTx. Analysis works on Snapshot once Stop has returned.
type Session struct {
	id     string
	stores [model.NumClasses]*Store
	log    *logrus.Entry

	input   chan model.Observation
	invalid atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New creates a session with capacity observations per class.
func New(id string, capacity, inputBuffer int, log *logrus.Entry) *Session {
	if inputBuffer <= 0 {
		inputBuffer = defaultInputBuffer
	}
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = logrus.NewEntry(discard)
	}
	s := &Session{
		id:    id,
		log:   log,
		input: make(chan model.Observation, inputBuffer),
	}
	for c := range s.stores {
		s.stores[c] = NewStore(uint8(c), capacity)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Start launches the ingestion consumer.
func (s *Session) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.consume()
		s.log.Debug("Session ingestion started.")
	})
}

// Stop closes the input channel and waits for queued observations to be stored.
// No capture source may send after Stop.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.input)
		s.wg.Wait()
		s.log.WithField("invalid", s.invalid.Load()).Debug("Session ingestion stopped.")
	})
}

// Input returns the channel capture sources send observations to.
func (s *Session) Input() chan<- model.Observation {
	return s.input
}

// Store returns the store of class c.
func (s *Session) Store(c uint8) *Store {
	return s.stores[c]
}

// Add stores an observation directly, bypassing the input channel.
func (s *Session) Add(o model.Observation) bool {
	if int(o.Class) >= model.NumClasses {
		s.invalid.Add(1)
		return false
	}
	ok, dropped := s.stores[o.Class].append(o)
	if !ok && dropped == 1 {
		s.log.WithField("class", o.Class).Warn("Sample store full, dropping further observations for this class.")
	}
	return ok
}

// RecordTx counts a frame injected for class.
func (s *Session) RecordTx(class uint8, bytes int) {
	if int(class) >= model.NumClasses {
		return
	}
	s.stores[class].RecordTx(bytes)
}

// ClassStats returns the running aggregates of class c.
func (s *Session) ClassStats(c uint8) (observations int, bytes, tx, dropped uint64) {
	return s.stores[c].Stats()
}

// Invalid returns the number of observations rejected for their class.
func (s *Session) Invalid() uint64 {
	return s.invalid.Load()
}

// Queued returns the number of observations waiting in the input channel.
func (s *Session) Queued() int {
	return len(s.input)
}

// Snapshot copies every store. It is meant to be called after Stop.
func (s *Session) Snapshot() *model.Snapshot {
	snap := &model.Snapshot{SessionID: s.id, Invalid: s.invalid.Load()}
	for c, st := range s.stores {
		snap.Classes[c] = st.Snapshot()
	}
	return snap
}

func (s *Session) consume() {
	defer s.wg.Done()
	for o := range s.input {
		s.Add(o)
	}
}
