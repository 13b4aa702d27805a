package capture

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"TSNSpectra/internal/config"
	"TSNSpectra/internal/engine/protocol"
	"TSNSpectra/internal/logging"
	"TSNSpectra/internal/model"

	"github.com/google/gopacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBPFFilter(t *testing.T) {
	tests := []struct {
		vlan  int
		extra string
		want  string
	}{
		{0, "", "vlan"},
		{100, "", "vlan 100"},
		{0, "udp", "vlan and (udp)"},
		{7, "udp port 5001", "vlan 7 and (udp port 5001)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BPFFilter(tt.vlan, tt.extra))
	}
}

func TestRecorderThenFileSource(t *testing.T) {
	log := logging.Discard().WithField("component", "capture")
	path := filepath.Join(t.TempDir(), "rec", "session.pcap")

	rec, err := NewRecorder(path, 0, log)
	require.NoError(t, err)

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 20; i++ {
		frame, err := protocol.BuildFrame(protocol.FrameSpec{
			SrcMAC:      net.HardwareAddr{2, 0, 0, 0, 0, 1},
			DstMAC:      net.HardwareAddr{2, 0, 0, 0, 0, 2},
			SrcIP:       net.IPv4(10, 0, 0, 1).To4(),
			DstIP:       net.IPv4(10, 0, 0, 2).To4(),
			VLANID:      5,
			Priority:    uint8(i % 2),
			PayloadSize: 100,
		})
		require.NoError(t, err)
		ts := base.Add(time.Duration(i*125) * time.Nanosecond)
		rec.Enqueue(gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(frame), Length: len(frame)}, frame)
	}
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
	assert.Zero(t, rec.Dropped())

	out := make(chan model.Observation, 32)
	require.NoError(t, NewFileSource(path, 0, log).Run(context.Background(), out))
	close(out)

	var got []model.Observation
	for o := range out {
		got = append(got, o)
	}
	require.Len(t, got, 20)
	assert.Equal(t, uint8(1), got[3].Class)
	// Nanosecond timestamps survive the round trip.
	assert.Equal(t, uint64(base.UnixNano())+375, got[3].TimestampNs)
}

func TestFileSource_OnlyConfiguredVLAN(t *testing.T) {
	log := logging.Discard().WithField("component", "capture")
	path := filepath.Join(t.TempDir(), "mixed.pcap")

	rec, err := NewRecorder(path, 0, log)
	require.NoError(t, err)
	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 10; i++ {
		vid := uint16(100)
		if i >= 4 {
			vid = 200
		}
		frame, err := protocol.BuildFrame(protocol.FrameSpec{
			SrcMAC:      net.HardwareAddr{2, 0, 0, 0, 0, 1},
			DstMAC:      net.HardwareAddr{2, 0, 0, 0, 0, 2},
			SrcIP:       net.IPv4(10, 0, 0, 1).To4(),
			DstIP:       net.IPv4(10, 0, 0, 2).To4(),
			VLANID:      vid,
			Priority:    2,
			PayloadSize: 100,
		})
		require.NoError(t, err)
		ts := base.Add(time.Duration(i) * time.Microsecond)
		rec.Enqueue(gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(frame), Length: len(frame)}, frame)
	}
	require.NoError(t, rec.Close())

	for vid, want := range map[int]int{0: 10, 100: 4, 200: 6, 300: 0} {
		out := make(chan model.Observation, 16)
		require.NoError(t, NewFileSource(path, vid, log).Run(context.Background(), out))
		close(out)
		assert.Len(t, out, want, "vlan %d", vid)
	}
}

func TestFileSource_Missing(t *testing.T) {
	err := NewFileSource(filepath.Join(t.TempDir(), "none.pcap"), 0, nil).Run(context.Background(), make(chan model.Observation))
	assert.Error(t, err)
}

func TestNewLiveSource_Validation(t *testing.T) {
	cfg := config.Default().Capture
	_, err := NewLiveSource(cfg, nil, nil)
	assert.Error(t, err)

	cfg.Interface = "eth0"
	cfg.ReadTimeout = ""
	src, err := NewLiveSource(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultReadTimeout, src.readTimeout)
}

func TestChannelSource(t *testing.T) {
	in := make(chan model.Observation, 3)
	out := make(chan model.Observation, 3)
	in <- model.Observation{TimestampNs: 1, Class: 1}
	in <- model.Observation{TimestampNs: 2, Class: 2}
	close(in)

	require.NoError(t, NewChannelSource(in).Run(context.Background(), out))
	require.Len(t, out, 2)
	assert.Equal(t, uint64(1), (<-out).TimestampNs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, NewChannelSource(make(chan model.Observation)).Run(ctx, out))
}
