package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TSNSpectra/internal/config"
	"TSNSpectra/internal/engine/protocol"
	"TSNSpectra/internal/model"

	"github.com/google/gopacket/pcap"
	"github.com/sirupsen/logrus"
)

// DefaultReadTimeout bounds how long a blocked read can delay cancellation.
const DefaultReadTimeout = 100 * time.Millisecond

// LiveSource captures VLAN-tagged frames from a network interface.
type LiveSource struct {
	cfg         config.CaptureConfig
	readTimeout time.Duration
	recorder    *Recorder
	log         *logrus.Entry
}

// NewLiveSource creates a live source. A non-nil recorder receives a copy of
// every captured frame.
func NewLiveSource(cfg config.CaptureConfig, recorder *Recorder, log *logrus.Entry) (*LiveSource, error) {
	if cfg.Interface == "" {
		return nil, fmt.Errorf("capture interface is required")
	}
	timeout, err := config.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read timeout: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LiveSource{cfg: cfg, readTimeout: timeout, recorder: recorder, log: log}, nil
}

// Run opens the interface and delivers observations until ctx is cancelled.
// Read timeouts only wake the loop so that cancellation is noticed.
func (s *LiveSource) Run(ctx context.Context, out chan<- model.Observation) error {
	snapLen := s.cfg.SnapLen
	if snapLen <= 0 {
		snapLen = 128
	}
	handle, err := pcap.OpenLive(s.cfg.Interface, snapLen, s.cfg.Promiscuous, s.readTimeout)
	if err != nil {
		return fmt.Errorf("error opening device %s: %w", s.cfg.Interface, err)
	}
	defer handle.Close()

	filter := BPFFilter(s.cfg.VLANID, s.cfg.Filter)
	if err := handle.SetBPFFilter(filter); err != nil {
		return fmt.Errorf("failed to set filter %q: %w", filter, err)
	}
	s.log.WithFields(logrus.Fields{"interface": s.cfg.Interface, "filter": filter}).Info("Capture started")

	var captured, skipped uint64
	defer func() {
		s.log.WithFields(logrus.Fields{"captured": captured, "skipped": skipped}).Info("Capture stopped")
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		data, ci, err := handle.ReadPacketData()
		switch {
		case errors.Is(err, pcap.NextErrorTimeoutExpired):
			continue
		case err != nil:
			return fmt.Errorf("capture read failed: %w", err)
		}

		obs, err := protocol.ParseFrame(data, ci)
		if err != nil {
			skipped++
			continue
		}
		if s.recorder != nil {
			s.recorder.Enqueue(ci, data)
		}
		select {
		case out <- obs:
			captured++
		case <-ctx.Done():
			return nil
		}
	}
}
