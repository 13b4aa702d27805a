// Package probe moves observations between capture hosts and the analyzer
// over NATS, in protobuf-encoded batches.
package probe

import (
	"context"
	"fmt"
	"time"

	"TSNSpectra/internal/config"
	"TSNSpectra/internal/model"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const (
	defaultBatchSize     = 512
	defaultFlushInterval = 50 * time.Millisecond
)

type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// Publisher is responsible for publishing observation batches to a NATS
// subject.
type Publisher struct {
	nc         *nats.Conn
	pub        natsPublisher
	subject    string
	probeID    string
	batchSize  int
	flushEvery time.Duration
	seq        uint64
	log        *logrus.Entry
}

// NewPublisher connects to NATS. probeID tags every batch.
func NewPublisher(cfg config.ProbeConfig, probeID string, log *logrus.Entry) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("tsn-probe "+probeID))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATSURL, err)
	}
	p := newPublisher(nc, cfg, probeID, log)
	p.nc = nc
	p.log.Infof("Connected to NATS server at %s", cfg.NATSURL)
	return p, nil
}

func newPublisher(pub natsPublisher, cfg config.ProbeConfig, probeID string, log *logrus.Entry) *Publisher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	p := &Publisher{
		pub:        pub,
		subject:    cfg.Subject,
		probeID:    probeID,
		batchSize:  cfg.BatchSize,
		flushEvery: config.MustDuration(cfg.FlushInterval),
		log:        log,
	}
	if p.batchSize <= 0 {
		p.batchSize = defaultBatchSize
	}
	if p.flushEvery <= 0 {
		p.flushEvery = defaultFlushInterval
	}
	return p
}

// Run collects observations from in and publishes them whenever a batch is
// full or the flush interval passes. It returns once in is closed or ctx is
// cancelled, after publishing what is left.
func (p *Publisher) Run(ctx context.Context, in <-chan model.Observation) error {
	ticker := time.NewTicker(p.flushEvery)
	defer ticker.Stop()

	pending := make([]model.Observation, 0, p.batchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		err := p.Publish(pending)
		pending = pending[:0]
		return err
	}

	for {
		select {
		case o, ok := <-in:
			if !ok {
				return flush()
			}
			pending = append(pending, o)
			if len(pending) >= p.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}
		case <-ctx.Done():
			return flush()
		}
	}
}

// Publish sends observations as one batch.
func (p *Publisher) Publish(observations []model.Observation) error {
	p.seq++
	data := MarshalBatch(&Batch{ProbeID: p.probeID, Seq: p.seq, Observations: observations})
	if err := p.pub.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish batch %d: %w", p.seq, err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.log.WithError(err).Warn("NATS drain failed")
		}
		p.log.Info("NATS connection drained and closed.")
	}
}
