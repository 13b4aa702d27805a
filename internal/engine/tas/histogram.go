// Package tas infers an IEEE 802.1Qbv time-aware shaper schedule: the cycle
// length, the per-class gate windows inside the cycle, and the gate control
// list that merges them.
package tas

import "TSNSpectra/internal/model"

// phaseOf returns the offset of ts inside a cycle that starts at origin.
// Timestamps before origin fold backwards into the previous cycle.
func phaseOf(ts, origin, cycleNs uint64) uint64 {
	d := int64(ts - origin)
	c := int64(cycleNs)
	p := d % c
	if p < 0 {
		p += c
	}
	return uint64(p)
}

// histogram counts observations per phase bin of a cycle.
func histogram(obs []model.Observation, origin, cycleNs uint64, bins int) []uint64 {
	counts := make([]uint64, bins)
	n := uint64(bins)
	for _, o := range obs {
		p := phaseOf(o.TimestampNs, origin, cycleNs)
		counts[p*n/cycleNs]++
	}
	return counts
}

// binOffset is the start of bin i in nanoseconds. Computing it from i rather
// than accumulating a bin width keeps the last bin ending exactly on cycleNs.
func binOffset(i, bins int, cycleNs uint64) uint64 {
	return uint64(i) * cycleNs / uint64(bins)
}

// concentration scores how unevenly counts are spread over the bins: the
// population variance normalised by the squared mean. A flat histogram scores
// zero; a histogram with a fraction p of equally filled bins scores 1/p - 1.
func concentration(counts []uint64) float64 {
	const eps = 1e-9
	if len(counts) == 0 {
		return 0
	}
	var sum float64
	for _, c := range counts {
		sum += float64(c)
	}
	mean := sum / float64(len(counts))
	var sq float64
	for _, c := range counts {
		d := float64(c) - mean
		sq += d * d
	}
	variance := sq / float64(len(counts))
	return variance / (mean*mean + eps)
}
