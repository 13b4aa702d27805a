package manager

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"TSNSpectra/internal/analyzer"
	"TSNSpectra/internal/config"
	"TSNSpectra/internal/factory"
	"TSNSpectra/internal/metrics"
	"TSNSpectra/internal/model"
	_ "TSNSpectra/internal/report" // Registers the file and clickhouse writers
	"TSNSpectra/internal/session"

	"github.com/sirupsen/logrus"
)

// Manager runs one measurement session: it owns the sample stores, analyses
// them once ingestion stops, and hands the report to every writer.
type Manager struct {
	session  *session.Session
	analyzer *analyzer.Analyzer
	writers  []model.Writer
	metrics  *metrics.ReportMetrics
	log      *logrus.Entry

	mu     sync.RWMutex
	report *model.Report

	stopOnce sync.Once
	stopErr  error
}

// Option customises a Manager.
type Option func(*Manager)

// WithWriters appends writers that are not built from the config, such as
// an in-memory report store.
func WithWriters(writers ...model.Writer) Option {
	return func(m *Manager) {
		m.writers = append(m.writers, writers...)
	}
}

// WithMetrics publishes every report to m.
func WithMetrics(rm *metrics.ReportMetrics) Option {
	return func(m *Manager) {
		m.metrics = rm
	}
}

// NewManager creates a manager for session id.
func NewManager(cfg *config.Config, id string, log *logrus.Entry, opts ...Option) (*Manager, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("session", id)

	writers, err := factory.CreateWriters(cfg, log)
	if err != nil {
		return nil, err
	}
	an, err := analyzer.New(cfg.Analysis, log.WithField("component", "analyzer"))
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer: %w", err)
	}

	m := &Manager{
		session:  session.New(id, cfg.Session.CapacityPerClass, cfg.Session.InputBuffer, log.WithField("component", "session")),
		analyzer: an,
		writers:  writers,
		log:      log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Session exposes the live session, for metrics and subscribers.
func (m *Manager) Session() *session.Session {
	return m.session
}

// Start begins ingestion.
func (m *Manager) Start() {
	m.session.Start()
	m.log.Infof("Manager started with %d writers.", len(m.writers))
}

// Input returns the channel capture sources send observations to.
func (m *Manager) Input() chan<- model.Observation {
	return m.session.Input()
}

// RecordTx counts a frame injected by the transmitter.
func (m *Manager) RecordTx(class uint8, bytes int) {
	m.session.RecordTx(class, bytes)
}

// Stop ends ingestion, analyses the stores and writes the report. Capture
// sources must have returned before Stop is called. Later calls return the
// result of the first.
func (m *Manager) Stop() error {
	m.stopOnce.Do(func() {
		m.log.Info("Manager stopping...")
		m.session.Stop()

		r := m.analyzer.Analyze(m.session.Snapshot())
		m.mu.Lock()
		m.report = r
		m.mu.Unlock()

		if m.metrics != nil {
			m.metrics.Observe(r)
		}
		m.stopErr = m.writeReport(r)
		m.log.Info("Manager stopped.")
	})
	return m.stopErr
}

// writeReport hands r to every writer concurrently.
func (m *Manager) writeReport(r *model.Report) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	wg.Add(len(m.writers))
	for _, w := range m.writers {
		go func(w model.Writer) {
			defer wg.Done()
			if err := w.Write(r); err != nil {
				m.log.WithError(err).Errorf("Error writing report with writer %s", w.Name())
				mu.Lock()
				errs = append(errs, fmt.Errorf("writer %s: %w", w.Name(), err))
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Report returns the analysis result, or nil before Stop.
func (m *Manager) Report() *model.Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.report
}

// Close releases writers holding connections.
func (m *Manager) Close() error {
	var errs []error
	for _, w := range m.writers {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing writer %s: %w", w.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
