package probe

import (
	"context"
	"sync"
	"testing"
	"time"

	"TSNSpectra/internal/config"
	"TSNSpectra/internal/logging"
	"TSNSpectra/internal/model"
	"TSNSpectra/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestBatchCodec_RoundTrip(t *testing.T) {
	in := &Batch{
		ProbeID: "probe-a",
		Seq:     42,
		Observations: []model.Observation{
			{TimestampNs: 1_700_000_000_123_456_789, Length: 1518, Class: 7},
			{TimestampNs: 0, Length: 64, Class: 0},
		},
	}
	out, err := UnmarshalBatch(MarshalBatch(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestBatchCodec_SkipsUnknownFields(t *testing.T) {
	data := MarshalBatch(&Batch{ProbeID: "p", Seq: 1})
	data = protowire.AppendTag(data, 99, protowire.BytesType)
	data = protowire.AppendString(data, "future")

	out, err := UnmarshalBatch(data)
	require.NoError(t, err)
	assert.Equal(t, "p", out.ProbeID)
}

func TestBatchCodec_Rejects(t *testing.T) {
	_, err := UnmarshalBatch([]byte{0x0a, 0x05, 'a'})
	assert.Error(t, err)

	var obs []byte
	obs = protowire.AppendTag(obs, fieldLength, protowire.VarintType)
	obs = protowire.AppendVarint(obs, 70000)
	var data []byte
	data = protowire.AppendTag(data, fieldObservations, protowire.BytesType)
	data = protowire.AppendBytes(data, obs)
	_, err = UnmarshalBatch(data)
	assert.ErrorIs(t, err, errFieldRange)
}

type fakeConn struct {
	mu       sync.Mutex
	subjects []string
	batches  []*Batch
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	b, err := UnmarshalBatch(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subjects = append(c.subjects, subject)
	c.batches = append(c.batches, b)
	return nil
}

func TestPublisher_BatchesBySize(t *testing.T) {
	conn := &fakeConn{}
	cfg := config.Default().Probe
	cfg.BatchSize = 4
	cfg.FlushInterval = "1h"
	p := newPublisher(conn, cfg, "probe-a", logging.Discard().WithField("component", "probe"))

	in := make(chan model.Observation, 10)
	for i := 0; i < 10; i++ {
		in <- model.Observation{TimestampNs: uint64(i), Length: 100, Class: 3}
	}
	close(in)
	require.NoError(t, p.Run(context.Background(), in))

	require.Len(t, conn.batches, 3)
	assert.Len(t, conn.batches[0].Observations, 4)
	assert.Len(t, conn.batches[2].Observations, 2)
	assert.Equal(t, uint64(3), conn.batches[2].Seq)
	assert.Equal(t, "tsn.observations", conn.subjects[0])
}

func TestPublisher_FlushesOnInterval(t *testing.T) {
	conn := &fakeConn{}
	cfg := config.Default().Probe
	cfg.FlushInterval = "5ms"
	p := newPublisher(conn, cfg, "probe-a", nil)

	in := make(chan model.Observation)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, in) }()

	in <- model.Observation{TimestampNs: 1, Class: 1}
	assert.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return len(conn.batches) == 1
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestSubscriber_FeedsSessionAndCountsLoss(t *testing.T) {
	s := session.New("sub", 100, 16, nil)
	s.Start()

	sub := newSubscriber("tsn.observations", logging.Discard().WithField("component", "probe"))
	handler := Feed(s.Input())
	obs := []model.Observation{{TimestampNs: 5, Length: 60, Class: 4}}

	sub.handle(MarshalBatch(&Batch{ProbeID: "a", Seq: 1, Observations: obs}), handler)
	sub.handle(MarshalBatch(&Batch{ProbeID: "a", Seq: 4, Observations: obs}), handler)
	sub.handle(MarshalBatch(&Batch{ProbeID: "b", Seq: 9, Observations: obs}), handler)
	sub.handle([]byte{0xff}, handler)
	s.Stop()

	assert.Equal(t, uint64(2), sub.Lost())
	assert.Equal(t, uint64(3), sub.Received())
	assert.Len(t, s.Snapshot().Classes[4].Observations, 3)
}
