package capture

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"
)

const defaultRecorderBuffer = 10000

type frame struct {
	ci   gopacket.CaptureInfo
	data []byte
}

// Recorder writes captured frames to a nanosecond pcap file so that a live
// session can be replayed offline. Frames are written by a single goroutine
// in arrival order.
type Recorder struct {
	file    *os.File
	buf     *bufio.Writer
	w       *pcapgo.Writer
	frames  chan frame
	dropped atomic.Uint64
	wg      sync.WaitGroup
	once    sync.Once
	log     *logrus.Entry
}

// NewRecorder creates path (and its directory) and starts the writer.
func NewRecorder(path string, snapLen uint32, log *logrus.Entry) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	if snapLen == 0 {
		snapLen = 65535
	}
	buf := bufio.NewWriter(f)
	w := pcapgo.NewWriterNanos(buf)
	if err := w.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	r := &Recorder{
		file:   f,
		buf:    buf,
		w:      w,
		frames: make(chan frame, defaultRecorderBuffer),
		log:    log,
	}
	r.wg.Add(1)
	go r.run()
	return r, nil
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for f := range r.frames {
		if err := r.w.WritePacket(f.ci, f.data); err != nil {
			r.log.WithError(err).Warn("Failed to record frame")
		}
	}
}

// Enqueue queues a frame for writing. A full queue drops the frame.
func (r *Recorder) Enqueue(ci gopacket.CaptureInfo, data []byte) {
	select {
	case r.frames <- frame{ci: ci, data: data}:
	default:
		if r.dropped.Add(1) == 1 {
			r.log.Warn("Recorder queue full, dropping frames")
		}
	}
}

// Dropped returns the number of frames that did not fit the queue.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close writes the queued frames and closes the file.
func (r *Recorder) Close() error {
	var err error
	r.once.Do(func() {
		close(r.frames)
		r.wg.Wait()
		if ferr := r.buf.Flush(); ferr != nil {
			err = ferr
		}
		if cerr := r.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		r.log.WithFields(logrus.Fields{"file": r.file.Name(), "dropped": r.Dropped()}).Info("Recording closed")
	})
	return err
}
