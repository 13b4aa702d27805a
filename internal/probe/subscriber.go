package probe

import (
	"fmt"
	"sync"
	"sync/atomic"

	"TSNSpectra/internal/config"
	"TSNSpectra/internal/model"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// BatchHandler processes a received batch.
type BatchHandler func(b *Batch)

// Subscriber is responsible for subscribing to a NATS subject and decoding
// observation batches.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	log     *logrus.Entry

	mu       sync.Mutex
	lastSeq  map[string]uint64
	lost     atomic.Uint64
	received atomic.Uint64
}

// NewSubscriber connects to NATS.
func NewSubscriber(cfg config.ProbeConfig, log *logrus.Entry) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("tsn-analyzer"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATSURL, err)
	}
	s := newSubscriber(cfg.Subject, log)
	s.nc = nc
	s.log.Infof("Connected to NATS server at %s", cfg.NATSURL)
	return s, nil
}

func newSubscriber(subject string, log *logrus.Entry) *Subscriber {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Subscriber{subject: subject, log: log, lastSeq: make(map[string]uint64)}
}

// Start subscribes and hands every decoded batch to handler.
func (s *Subscriber) Start(handler BatchHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		s.handle(msg.Data, handler)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	s.log.Infof("Subscribed to '%s'. Waiting for batches...", s.subject)
	return nil
}

func (s *Subscriber) handle(data []byte, handler BatchHandler) {
	b, err := UnmarshalBatch(data)
	if err != nil {
		s.log.WithError(err).Warn("Dropping undecodable batch")
		return
	}

	s.mu.Lock()
	last, seen := s.lastSeq[b.ProbeID]
	if seen && b.Seq > last+1 {
		missing := b.Seq - last - 1
		s.lost.Add(missing)
		s.log.WithFields(logrus.Fields{"probe": b.ProbeID, "missing": missing}).Warn("Batches lost in transit")
	}
	if b.Seq > last {
		s.lastSeq[b.ProbeID] = b.Seq
	}
	s.mu.Unlock()

	s.received.Add(uint64(len(b.Observations)))
	handler(b)
}

// Lost returns the number of batches that never arrived.
func (s *Subscriber) Lost() uint64 {
	return s.lost.Load()
}

// Received returns the number of observations decoded so far.
func (s *Subscriber) Received() uint64 {
	return s.received.Load()
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.log.WithError(err).Warn("Unsubscribe failed")
		}
	}
	if s.nc != nil {
		s.nc.Close()
		s.log.Info("NATS connection closed.")
	}
}

// Feed returns a handler that pushes every observation into out. The
// handler blocks while out is full; out must outlive the subscription.
func Feed(out chan<- model.Observation) BatchHandler {
	return func(b *Batch) {
		for _, o := range b.Observations {
			out <- o
		}
	}
}
