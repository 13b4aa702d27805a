// Package transmit injects paced, VLAN-tagged test traffic so that a shaper
// under test has something to shape.
package transmit

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

// Sender puts one frame on the wire. *pcap.Handle satisfies it.
type Sender interface {
	WritePacketData(data []byte) error
}

// Frame is a prebuilt frame and the class it is tagged with.
type Frame struct {
	Class uint8
	Data  []byte
}

// ClassStats counts the frames sent for one class.
type ClassStats struct {
	Packets uint64 `json:"packets"`
	Bytes   uint64 `json:"bytes"`
}

// Stats summarises a transmit run.
type Stats struct {
	Sent     uint64                       `json:"sent"`
	Failed   uint64                       `json:"failed"`
	Bytes    uint64                       `json:"bytes"`
	Elapsed  time.Duration                `json:"elapsed"`
	PerClass [model.NumClasses]ClassStats `json:"per_class"`
}

// PPS is the achieved send rate.
func (s Stats) PPS() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Sent) / s.Elapsed.Seconds()
}

// Transmitter sends frames at a fixed total rate, cycling through them in
// order. Send failures are counted and never retried.
type Transmitter struct {
	sender   Sender
	waiter   Waiter
	recorder model.TxRecorder
	log      *logrus.Entry
	now      func() time.Time

	startDelay time.Duration
}

// New creates a transmitter. recorder may be nil.
func New(sender Sender, waiter Waiter, recorder model.TxRecorder, log *logrus.Entry) *Transmitter {
	if waiter == nil {
		waiter = BusyWaiter{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Transmitter{sender: sender, waiter: waiter, recorder: recorder, log: log, now: time.Now}
}

// SetStartDelay makes Run wait d before its first frame, leaving the capture
// side time to settle.
func (t *Transmitter) SetStartDelay(d time.Duration) {
	t.startDelay = d
}

// Run sends one frame every 1/pps seconds, round-robin over frames, until
// duration has elapsed or ctx is cancelled. Deadlines advance by a fixed
// interval from the start, so a late send does not shift later ones.
func (t *Transmitter) Run(ctx context.Context, frames []Frame, pps int, duration time.Duration) (Stats, error) {
	if len(frames) == 0 {
		return Stats{}, fmt.Errorf("no frames to send")
	}
	if pps <= 0 {
		return Stats{}, fmt.Errorf("pps must be positive, got %d", pps)
	}
	interval := time.Second / time.Duration(pps)
	if interval <= 0 {
		interval = time.Nanosecond
	}

	t.log.WithFields(logrus.Fields{
		"frames":   len(frames),
		"pps":      pps,
		"duration": duration,
	}).Info("Transmit started")

	var stats Stats
	if t.startDelay > 0 {
		if err := t.waiter.WaitUntil(ctx, t.now().Add(t.startDelay)); err != nil {
			t.log.Info("Transmit cancelled before start")
			return stats, nil
		}
	}
	start := t.now()
	next := start
	for i := 0; duration <= 0 || next.Sub(start) < duration; i++ {
		if err := t.waiter.WaitUntil(ctx, next); err != nil {
			break
		}
		f := frames[i%len(frames)]
		if err := t.sender.WritePacketData(f.Data); err != nil {
			if stats.Failed == 0 {
				t.log.WithError(err).Warn("Frame send failed")
			}
			stats.Failed++
		} else {
			stats.Sent++
			stats.Bytes += uint64(len(f.Data))
			stats.PerClass[f.Class].Packets++
			stats.PerClass[f.Class].Bytes += uint64(len(f.Data))
			if t.recorder != nil {
				t.recorder.RecordTx(f.Class, len(f.Data))
			}
		}
		next = next.Add(interval)
	}
	stats.Elapsed = t.now().Sub(start)

	t.log.WithFields(logrus.Fields{
		"sent":   stats.Sent,
		"failed": stats.Failed,
		"pps":    fmt.Sprintf("%.1f", stats.PPS()),
	}).Info("Transmit finished")

	if stats.Sent == 0 && stats.Failed > 0 {
		return stats, errors.New("every frame send failed")
	}
	return stats, nil
}

// FramesFromConfig builds one frame per configured class.
func FramesFromConfig(cfg config.TransmitConfig) ([]Frame, error) {
	spec, err := protocol.SpecFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	classes := cfg.Classes
	if len(classes) == 0 {
		classes = []int{int(cfg.Priority)}
	}
	frames := make([]Frame, 0, len(classes))
	for _, c := range classes {
		spec.Priority = uint8(c)
		data, err := protocol.BuildFrame(spec)
		if err != nil {
			return nil, fmt.Errorf("class %d: %w", c, err)
		}
		frames = append(frames, Frame{Class: uint8(c), Data: data})
	}
	return frames, nil
}

// OpenSender opens iface for injection.
func OpenSender(iface string) (*pcap.Handle, error) {
	handle, err := pcap.OpenLive(iface, 65535, false, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("error opening device %s for transmit: %w", iface, err)
	}
	return handle, nil
}
