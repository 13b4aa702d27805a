package transmit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"TSNSpectra/internal/config"
	"TSNSpectra/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock jumps straight to every deadline.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) WaitUntil(ctx context.Context, deadline time.Time) error {
	c.mu.Lock()
	if deadline.After(c.now) {
		c.now = deadline
	}
	c.mu.Unlock()
	return ctx.Err()
}

type fakeSender struct {
	sent   [][]byte
	failAt map[int]bool
	calls  int
}

func (s *fakeSender) WritePacketData(data []byte) error {
	s.calls++
	if s.failAt[s.calls] {
		return errors.New("no buffer space available")
	}
	s.sent = append(s.sent, data)
	return nil
}

type txCounter struct {
	counts [8]int
	bytes  [8]int
}

func (c *txCounter) RecordTx(class uint8, bytes int) {
	c.counts[class]++
	c.bytes[class] += bytes
}

func newTestTransmitter(sender Sender, rec *txCounter) (*Transmitter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	tx := New(sender, clock, rec, logging.Discard().WithField("component", "transmit"))
	tx.now = clock.Now
	return tx, clock
}

func TestTransmitter_PacesAndRoundRobins(t *testing.T) {
	sender := &fakeSender{}
	rec := &txCounter{}
	tx, _ := newTestTransmitter(sender, rec)

	frames := []Frame{{Class: 2, Data: make([]byte, 100)}, {Class: 5, Data: make([]byte, 200)}}
	stats, err := tx.Run(context.Background(), frames, 1000, 10*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, uint64(10), stats.Sent)
	assert.Equal(t, uint64(1500), stats.Bytes)
	assert.Equal(t, 9*time.Millisecond, stats.Elapsed)
	assert.Equal(t, ClassStats{Packets: 5, Bytes: 500}, stats.PerClass[2])
	assert.Equal(t, 5, rec.counts[5])
	assert.Equal(t, 1000, rec.bytes[5])
	assert.Len(t, sender.sent[1], 200)
}

func TestTransmitter_CountsFailuresWithoutRetry(t *testing.T) {
	sender := &fakeSender{failAt: map[int]bool{2: true, 3: true}}
	rec := &txCounter{}
	tx, _ := newTestTransmitter(sender, rec)

	stats, err := tx.Run(context.Background(), []Frame{{Class: 1, Data: []byte{1}}}, 100, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stats.Sent)
	assert.Equal(t, uint64(2), stats.Failed)
	assert.Equal(t, 5, sender.calls)
	assert.Equal(t, 3, rec.counts[1])
}

func TestTransmitter_AllFailed(t *testing.T) {
	sender := &fakeSender{failAt: map[int]bool{1: true, 2: true}}
	tx, _ := newTestTransmitter(sender, &txCounter{})

	_, err := tx.Run(context.Background(), []Frame{{Data: []byte{1}}}, 100, 20*time.Millisecond)
	assert.Error(t, err)
}

func TestTransmitter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sender := &fakeSender{}
	tx, _ := newTestTransmitter(sender, nil)

	stats, err := tx.Run(ctx, []Frame{{Data: []byte{1}}}, 100, 0)
	require.NoError(t, err)
	assert.Zero(t, stats.Sent)
}

func TestTransmitter_StartDelay(t *testing.T) {
	sender := &fakeSender{}
	tx, clock := newTestTransmitter(sender, nil)
	tx.SetStartDelay(5 * time.Millisecond)

	stats, err := tx.Run(context.Background(), []Frame{{Data: []byte{1}}}, 1000, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), stats.Sent)
	assert.Equal(t, 9*time.Millisecond, stats.Elapsed)
	assert.Equal(t, time.Unix(0, 0).Add(14*time.Millisecond), clock.Now())
}

func TestTransmitter_CancelledDuringStartDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sender := &fakeSender{}
	tx, _ := newTestTransmitter(sender, nil)
	tx.SetStartDelay(time.Second)

	stats, err := tx.Run(ctx, []Frame{{Data: []byte{1}}}, 100, time.Second)
	require.NoError(t, err)
	assert.Zero(t, stats.Sent)
	assert.Zero(t, sender.calls)
}

func TestTransmitter_Rejects(t *testing.T) {
	tx, _ := newTestTransmitter(&fakeSender{}, nil)
	_, err := tx.Run(context.Background(), nil, 100, time.Second)
	assert.Error(t, err)
	_, err = tx.Run(context.Background(), []Frame{{Data: []byte{1}}}, 0, time.Second)
	assert.Error(t, err)
}

func TestSleepWaiter(t *testing.T) {
	start := time.Now()
	require.NoError(t, SleepWaiter{}.WaitUntil(context.Background(), start.Add(2*time.Millisecond)))
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepWaiter{}.WaitUntil(ctx, time.Now().Add(time.Hour)), context.Canceled)
	assert.ErrorIs(t, BusyWaiter{}.WaitUntil(ctx, time.Now().Add(time.Hour)), context.Canceled)
}

func TestNewWaiter(t *testing.T) {
	w, err := NewWaiter("sleep")
	require.NoError(t, err)
	assert.IsType(t, SleepWaiter{}, w)
	w, err = NewWaiter("")
	require.NoError(t, err)
	assert.IsType(t, BusyWaiter{}, w)
	_, err = NewWaiter("nap")
	assert.Error(t, err)
}

func TestFramesFromConfig(t *testing.T) {
	cfg := config.Default().Transmit
	cfg.SrcMAC = "02:00:00:00:00:01"
	cfg.DstMAC = "02:00:00:00:00:02"
	cfg.Classes = []int{6, 7}

	frames, err := FramesFromConfig(cfg)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, uint8(7), frames[1].Class)
	assert.NotEqual(t, frames[0].Data, frames[1].Data)
}
