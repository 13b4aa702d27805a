package pcap

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"TSNSpectra/internal/engine/protocol"
	"TSNSpectra/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, ng bool) string {
	t.Helper()
	frame, err := protocol.BuildFrame(protocol.FrameSpec{
		SrcMAC:      net.HardwareAddr{2, 0, 0, 0, 0, 1},
		DstMAC:      net.HardwareAddr{2, 0, 0, 0, 0, 2},
		SrcIP:       net.IPv4(10, 0, 0, 1).To4(),
		DstIP:       net.IPv4(10, 0, 0, 2).To4(),
		SrcPort:     1,
		DstPort:     2,
		VLANID:      10,
		Priority:    6,
		PayloadSize: 200,
	})
	require.NoError(t, err)
	untagged := make([]byte, 60)
	untagged[12], untagged[13] = 0x08, 0x00

	path := filepath.Join(t.TempDir(), "test.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	write := func(ci gopacket.CaptureInfo, data []byte) error { return nil }
	if ng {
		w, err := pcapgo.NewNgWriter(f, layers.LinkTypeEthernet)
		require.NoError(t, err)
		defer w.Flush()
		write = w.WritePacket
	} else {
		w := pcapgo.NewWriterNanos(f)
		require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
		write = w.WritePacket
	}

	base := time.Unix(100, 0)
	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Microsecond)
		require.NoError(t, write(gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(frame), Length: len(frame)}, frame))
	}
	require.NoError(t, write(gopacket.CaptureInfo{Timestamp: base, CaptureLength: 60, Length: 60}, untagged))
	return path
}

func TestReader_ReadObservations(t *testing.T) {
	for _, ng := range []bool{false, true} {
		reader, err := NewReader(writeTestFile(t, ng))
		require.NoError(t, err)

		out := make(chan model.Observation, 10)
		stats, err := reader.ReadObservations(context.Background(), out)
		require.NoError(t, err)
		require.NoError(t, reader.Close())
		close(out)

		assert.Equal(t, Stats{Packets: 3, Skipped: 1}, stats)
		var got []model.Observation
		for o := range out {
			got = append(got, o)
		}
		require.Len(t, got, 3)
		assert.Equal(t, uint8(6), got[0].Class)
		assert.Equal(t, uint64(100_000_001_000), got[1].TimestampNs)
	}
}

func TestReader_FilterVLAN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "two-vlans.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := pcapgo.NewWriterNanos(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))

	base := time.Unix(200, 0)
	for i := 0; i < 6; i++ {
		vid, prio := uint16(100), uint8(3)
		if i%2 == 1 {
			vid, prio = 200, 5
		}
		frame, err := protocol.BuildFrame(protocol.FrameSpec{
			SrcMAC:      net.HardwareAddr{2, 0, 0, 0, 0, 1},
			DstMAC:      net.HardwareAddr{2, 0, 0, 0, 0, 2},
			SrcIP:       net.IPv4(10, 0, 0, 1).To4(),
			DstIP:       net.IPv4(10, 0, 0, 2).To4(),
			VLANID:      vid,
			Priority:    prio,
			PayloadSize: 100,
		})
		require.NoError(t, err)
		ts := base.Add(time.Duration(i) * time.Microsecond)
		require.NoError(t, w.WritePacket(gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(frame), Length: len(frame)}, frame))
	}
	require.NoError(t, f.Close())

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer reader.Close()
	reader.FilterVLAN(100)

	out := make(chan model.Observation, 10)
	stats, err := reader.ReadObservations(context.Background(), out)
	require.NoError(t, err)
	close(out)

	assert.Equal(t, Stats{Packets: 3, Filtered: 3}, stats)
	for o := range out {
		assert.Equal(t, uint8(3), o.Class)
	}
}

func TestReader_Cancelled(t *testing.T) {
	reader, err := NewReader(writeTestFile(t, false))
	require.NoError(t, err)
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = reader.ReadObservations(ctx, make(chan model.Observation))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewReader_NotACapture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a capture file"), 0o644))
	_, err := NewReader(path)
	assert.Error(t, err)
}
