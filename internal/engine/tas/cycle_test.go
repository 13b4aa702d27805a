package tas

import (
	"testing"
	"time"

	"TSNSpectra/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleDetector_FindsTenMillisecondCycle(t *testing.T) {
	// 200 cycles keep every longer multiple a whole number of its own cycles,
	// so the multiples tie with 10 ms exactly and lose on length.
	class := evenClass(10*time.Millisecond, 10*time.Microsecond, 200, [2]time.Duration{0, 2 * time.Millisecond})

	res, err := NewCycleDetector(nil, 0).Detect([]model.ClassData{class}, 0)
	require.NoError(t, err)

	assert.Equal(t, uint64(10*time.Millisecond), res.CycleNs)
	assert.False(t, res.Overridden)
	assert.Len(t, res.Candidates, len(DefaultCandidates))
	assert.InDelta(t, 4.0, res.Score, 0.2)
}

// twoWindowClass has a 20 ms schedule with windows at [0, 2) ms and [10, 12) ms,
// the second carrying 9 packets per 100 µs against 10 in the first. Folded
// onto 10 ms both windows overlap into an even histogram, so only the 20 ms
// family sees the difference.
func twoWindowClass(periods int) model.ClassData {
	const period = uint64(20 * time.Millisecond)
	data := model.ClassData{Class: 4}
	add := func(ts uint64) {
		data.Observations = append(data.Observations, model.Observation{TimestampNs: ts, Length: 100, Class: 4})
		data.TotalBytes += 100
	}
	for k := 0; k < periods; k++ {
		base := uint64(k) * period
		for off := uint64(0); off < 2_000_000; off += 10_000 {
			add(base + off + 5_000)
		}
		for bin := uint64(0); bin < 2_000_000; bin += 100_000 {
			for j := uint64(0); j < 9; j++ {
				add(base + 10_000_000 + bin + 5_000 + j*11_000)
			}
		}
	}
	data.FirstTs = data.Observations[0].TimestampNs
	data.LastTs = data.Observations[len(data.Observations)-1].TimestampNs
	return data
}

func TestCycleDetector_HighestScoreWins(t *testing.T) {
	// 100 periods keep every candidate up to 500 ms a whole number of cycles.
	class := twoWindowClass(100)

	res, err := NewCycleDetector(nil, 0).Detect([]model.ClassData{class}, 0)
	require.NoError(t, err)

	scores := make(map[uint64]float64, len(res.Candidates))
	best := res.Candidates[0]
	for _, c := range res.Candidates {
		scores[c.CycleNs] = c.Score
		if c.Score > best.Score {
			best = c
		}
	}
	ten, twenty := uint64(10*time.Millisecond), uint64(20*time.Millisecond)
	assert.InDelta(t, 4.0, scores[ten], 1e-6)
	assert.Greater(t, scores[twenty], scores[ten])

	assert.Equal(t, best.CycleNs, res.CycleNs)
	assert.Equal(t, best.Score, res.Score)
	assert.NotEqual(t, ten, res.CycleNs)
	assert.Zero(t, res.CycleNs%twenty)
}

func TestCycleDetector_AveragesEligibleClassesOnly(t *testing.T) {
	gated := evenClass(2*time.Millisecond, 10*time.Microsecond, 250, [2]time.Duration{500 * time.Microsecond, 500 * time.Microsecond})
	sparse := model.ClassData{Class: 2, Observations: make([]model.Observation, 50)}

	res, err := NewCycleDetector(nil, 0).Detect([]model.ClassData{sparse, gated}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2*time.Millisecond), res.CycleNs)
}

func TestCycleDetector_Override(t *testing.T) {
	res, err := NewCycleDetector(nil, 0).Detect(nil, 7*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, res.Overridden)
	assert.Equal(t, uint64(7*time.Millisecond), res.CycleNs)
	assert.Empty(t, res.Candidates)
}

func TestCycleDetector_NoEligibleClass(t *testing.T) {
	few := model.ClassData{Observations: make([]model.Observation, MinCycleObservations-1)}
	_, err := NewCycleDetector(nil, 0).Detect([]model.ClassData{few}, 0)
	assert.ErrorIs(t, err, model.ErrNoPeriodicity)
	assert.NotErrorIs(t, err, model.ErrInsufficientData)
}

func TestConcentration(t *testing.T) {
	assert.InDelta(t, 0.0, concentration([]uint64{5, 5, 5, 5}), 1e-9)
	// One of four bins filled: 1/p - 1 = 3.
	assert.InDelta(t, 3.0, concentration([]uint64{8, 0, 0, 0}), 1e-6)
	assert.InDelta(t, 0.0, concentration([]uint64{0, 0, 0}), 1e-9)
}

func TestPhaseOf_BeforeOrigin(t *testing.T) {
	assert.Equal(t, uint64(3), phaseOf(13, 10, 10))
	assert.Equal(t, uint64(8), phaseOf(8, 10, 10))
}
