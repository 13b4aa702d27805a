package pcap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"TSNSpectra/internal/engine/protocol"
	"TSNSpectra/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
)

// Stats counts what a read pass saw.
type Stats struct {
	Packets  uint64 // frames turned into observations
	Skipped  uint64 // frames without an 802.1Q tag or otherwise undecodable
	Filtered uint64 // tagged frames of another VLAN
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// Reader reads frames from a pcap or pcapng file.
type Reader struct {
	file   *os.File
	src    packetReader
	vlanID uint16
}

// NewReader opens filePath, accepting both the classic pcap and the pcapng
// format.
func NewReader(filePath string) (*Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}

	if r, err := pcapgo.NewReader(bufio.NewReader(f)); err == nil {
		return &Reader{file: f, src: r}, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	ng, err := pcapgo.NewNgReader(bufio.NewReader(f), pcapgo.DefaultNgReaderOptions)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s is neither pcap nor pcapng: %w", filePath, err)
	}
	return &Reader{file: f, src: ng}, nil
}

// FilterVLAN restricts ReadObservations to frames tagged with vid. Zero, the
// default, accepts every VLAN.
func (r *Reader) FilterVLAN(vid uint16) {
	r.vlanID = vid
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadObservations parses every frame of the file and sends the resulting
// observations to out, keeping the recorded timestamps. It returns when the
// file ends or ctx is cancelled; out is not closed.
func (r *Reader) ReadObservations(ctx context.Context, out chan<- model.Observation) (Stats, error) {
	var stats Stats
	for {
		data, ci, err := r.src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("failed to read packet %d: %w", stats.Packets+stats.Skipped+stats.Filtered+1, err)
		}

		obs, vid, err := protocol.ParseTaggedFrame(data, ci)
		if err != nil {
			stats.Skipped++
			continue
		}
		if r.vlanID != 0 && vid != r.vlanID {
			stats.Filtered++
			continue
		}
		select {
		case out <- obs:
			stats.Packets++
		case <-ctx.Done():
			return stats, ctx.Err()
		}
	}
}
