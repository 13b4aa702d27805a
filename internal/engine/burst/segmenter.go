// Package burst splits a class's observation sequence into bursts separated
// by idle gaps.
package burst

import (
	"time"

	"TSNSpectra/internal/model"
)

const (
	// DefaultGapThreshold separates two bursts.
	DefaultGapThreshold = 500 * time.Microsecond
	// DefaultMaxBursts bounds the burst list of one class.
	DefaultMaxBursts = 100_000
)

// Result is the output of Segment. Truncated is set when the burst limit was
// reached; from then on further packets extend the last burst.
type Result struct {
	Bursts    []model.Burst
	Truncated bool
}

// Segmenter turns observations into bursts.
type Segmenter struct {
	gapNs     uint64
	maxBursts int
}

// New creates a segmenter. Zero arguments select the defaults.
func New(gapThreshold time.Duration, maxBursts int) *Segmenter {
	if gapThreshold <= 0 {
		gapThreshold = DefaultGapThreshold
	}
	if maxBursts <= 0 {
		maxBursts = DefaultMaxBursts
	}
	return &Segmenter{gapNs: uint64(gapThreshold), maxBursts: maxBursts}
}

// GapThreshold returns the configured inter-packet gap threshold.
func (s *Segmenter) GapThreshold() time.Duration {
	return time.Duration(s.gapNs)
}

// Segment computes the bursts of obs. Fewer than two observations yield an
// empty result. Observations are taken in capture order and the gap is
// measured from the latest timestamp of the open burst, so a timestamp that
// goes backwards never opens a new burst.
func (s *Segmenter) Segment(obs []model.Observation) Result {
	if len(obs) < 2 {
		return Result{}
	}

	var res Result
	cur := model.Burst{
		StartNs:     obs[0].TimestampNs,
		EndNs:       obs[0].TimestampNs,
		ByteCount:   uint64(obs[0].Length),
		PacketCount: 1,
	}

	for _, o := range obs[1:] {
		ts := o.TimestampNs
		if ts > cur.EndNs && ts-cur.EndNs > s.gapNs {
			if len(res.Bursts)+1 < s.maxBursts {
				res.Bursts = append(res.Bursts, cur)
				cur = model.Burst{StartNs: ts, EndNs: ts}
			} else {
				res.Truncated = true
			}
		}
		cur.ByteCount += uint64(o.Length)
		cur.PacketCount++
		if ts > cur.EndNs {
			cur.EndNs = ts
		}
	}
	res.Bursts = append(res.Bursts, cur)
	return res
}
