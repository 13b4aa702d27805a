package burst

import (
	"math"

	"TSNSpectra/internal/model"
)

// MaxIntervalNs is the longest inter-arrival gap counted by Intervals. Longer
// gaps are pauses in the traffic rather than part of its pacing.
const MaxIntervalNs = uint64(1e9)

// IntervalStats summarises the gaps between consecutive observations.
type IntervalStats struct {
	Count    int
	AvgUs    float64
	StddevUs float64
}

// Intervals computes the mean and population standard deviation of the
// inter-arrival times of obs, skipping gaps of MaxIntervalNs or more. Fewer
// than three observations give a zero result.
func Intervals(obs []model.Observation) IntervalStats {
	if len(obs) < 3 {
		return IntervalStats{}
	}
	var sum, sumSq float64
	var n int
	for i := 1; i < len(obs); i++ {
		if obs[i].TimestampNs < obs[i-1].TimestampNs {
			continue
		}
		d := obs[i].TimestampNs - obs[i-1].TimestampNs
		if d >= MaxIntervalNs {
			continue
		}
		us := float64(d) / 1e3
		sum += us
		sumSq += us * us
		n++
	}
	if n == 0 {
		return IntervalStats{}
	}
	avg := sum / float64(n)
	variance := sumSq/float64(n) - avg*avg
	st := IntervalStats{Count: n, AvgUs: avg}
	if variance > 0 {
		st.StddevUs = math.Sqrt(variance)
	}
	return st
}
