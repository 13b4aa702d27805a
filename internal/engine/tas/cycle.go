package tas

import (
	"fmt"
	"slices"
	"time"

	"TSNSpectra/internal/model"
)

const (
	// MinCycleObservations is the least number of observations a class needs
	// to take part in cycle detection.
	MinCycleObservations = 100
	// DefaultCycleBins is the phase histogram size used to score candidates.
	DefaultCycleBins = 100
)

// DefaultCandidates is the cycle search space, 100 µs to 500 ms on a
// 1-2-2.5-5 series, in ascending order.
var DefaultCandidates = []time.Duration{
	100 * time.Microsecond, 200 * time.Microsecond, 250 * time.Microsecond, 500 * time.Microsecond,
	1 * time.Millisecond, 2 * time.Millisecond, 2500 * time.Microsecond, 5 * time.Millisecond,
	10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond, 50 * time.Millisecond,
	100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond, 500 * time.Millisecond,
}

// CycleResult is the chosen cycle hypothesis.
type CycleResult struct {
	CycleNs    uint64
	Score      float64
	Overridden bool
	Candidates []model.CandidateScore
}

// CycleDetector searches a fixed candidate set for the TAS cycle length.
type CycleDetector struct {
	candidates []uint64
	bins       int
}

// NewCycleDetector creates a detector. A nil candidate list selects
// DefaultCandidates; bins <= 0 selects DefaultCycleBins.
func NewCycleDetector(candidates []time.Duration, bins int) *CycleDetector {
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}
	if bins <= 0 {
		bins = DefaultCycleBins
	}
	d := &CycleDetector{bins: bins}
	for _, c := range candidates {
		if c > 0 {
			d.candidates = append(d.candidates, uint64(c))
		}
	}
	slices.Sort(d.candidates)
	return d
}

// Detect returns override unchanged when it is non-zero. Otherwise it scores
// every candidate over the classes holding at least MinCycleObservations
// observations and returns the highest-scoring one; candidates are scanned in
// ascending order, so an exact tie goes to the shorter cycle. It fails with model.ErrNoPeriodicity
// when no class qualifies or no candidate scores above zero.
func (d *CycleDetector) Detect(classes []model.ClassData, override time.Duration) (CycleResult, error) {
	if override > 0 {
		return CycleResult{CycleNs: uint64(override), Overridden: true}, nil
	}

	var eligible []*model.ClassData
	for i := range classes {
		if len(classes[i].Observations) >= MinCycleObservations {
			eligible = append(eligible, &classes[i])
		}
	}
	if len(eligible) == 0 {
		return CycleResult{}, fmt.Errorf("no class has %d observations: %w", MinCycleObservations, model.ErrNoPeriodicity)
	}

	res := CycleResult{Candidates: make([]model.CandidateScore, 0, len(d.candidates))}
	for _, cycle := range d.candidates {
		var total float64
		for _, c := range eligible {
			total += concentration(histogram(c.Observations, c.FirstTs, cycle, d.bins))
		}
		score := total / float64(len(eligible))
		res.Candidates = append(res.Candidates, model.CandidateScore{CycleNs: cycle, Score: score})

		if res.CycleNs == 0 || score > res.Score {
			res.CycleNs = cycle
			res.Score = score
		}
	}
	if res.Score <= 0 {
		return res, fmt.Errorf("no candidate concentrates traffic: %w", model.ErrNoPeriodicity)
	}
	return res, nil
}
