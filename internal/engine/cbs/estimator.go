// Package cbs estimates IEEE 802.1Qav credit-based shaper parameters from the
// bursts of one traffic class.
//
// The shaped/unshaped decision is a heuristic over burst statistics, not a
// proof. A class is reported as shaped when its bursts are separated by
// noticeable idle time, there are enough of them, and they do not fill the
// observation period.
package cbs

import (
	"fmt"

	"TSNSpectra/internal/model"
)

const (
	// MinObservations is the least number of packets an estimate is computed from.
	MinObservations = 10
	// MinBursts is the least number of bursts an estimate is computed from.
	MinBursts = 1

	// DefaultLinkSpeedBps is used when no link speed is configured.
	DefaultLinkSpeedBps = 1e9

	shapedMinAvgGapUs = 100.0
	shapedMinBursts   = 3
	shapedMaxRatio    = 0.85
	hiCreditMargin    = 1.5 // 50% over the largest observed burst
)

// Estimator derives CBS parameters for a link of a given speed.
type Estimator struct {
	linkSpeedBps float64
}

// New returns an estimator for a link of linkSpeedBps bits per second.
func New(linkSpeedBps float64) *Estimator {
	if linkSpeedBps <= 0 {
		linkSpeedBps = DefaultLinkSpeedBps
	}
	return &Estimator{linkSpeedBps: linkSpeedBps}
}

// LinkSpeedBps returns the link speed the slopes are computed against.
func (e *Estimator) LinkSpeedBps() float64 {
	return e.linkSpeedBps
}

// Estimate computes the CBS estimate of a class from its stored data and
// bursts. It returns model.ErrInsufficientData when the preconditions are not
// met; the estimate is then meaningless and must not be reported.
func (e *Estimator) Estimate(data *model.ClassData, bursts []model.Burst) (model.CBSEstimate, error) {
	if len(data.Observations) < MinObservations {
		return model.CBSEstimate{}, fmt.Errorf("class %d has %d observations, need %d: %w",
			data.Class, len(data.Observations), MinObservations, model.ErrInsufficientData)
	}
	if len(bursts) < MinBursts {
		return model.CBSEstimate{}, fmt.Errorf("class %d has no bursts: %w", data.Class, model.ErrInsufficientData)
	}
	if data.LastTs <= data.FirstTs {
		return model.CBSEstimate{}, fmt.Errorf("class %d has a non-positive observation period: %w",
			data.Class, model.ErrInsufficientData)
	}

	periodNs := float64(data.LastTs - data.FirstTs)
	periodSec := periodNs / 1e9
	periodUs := periodNs / 1e3

	var burstUs float64
	var maxBurstBytes uint64
	for _, b := range bursts {
		burstUs += float64(b.DurationNs()) / 1e3
		if b.ByteCount > maxBurstBytes {
			maxBurstBytes = b.ByteCount
		}
	}

	var avgGapUs float64
	if len(bursts) >= 2 {
		var gapUs float64
		for i := 1; i < len(bursts); i++ {
			if bursts[i].StartNs > bursts[i-1].EndNs {
				gapUs += float64(bursts[i].StartNs-bursts[i-1].EndNs) / 1e3
			}
		}
		avgGapUs = gapUs / float64(len(bursts)-1)
	}

	est := model.CBSEstimate{
		MeasuredBps:   float64(data.TotalBytes) * 8 / periodSec,
		BurstRatio:    burstUs / periodUs,
		AvgGapUs:      avgGapUs,
		BurstCount:    len(bursts),
		AvgBurstUs:    burstUs / float64(len(bursts)),
		MaxBurstBytes: maxBurstBytes,
		DurationMs:    periodNs / 1e6,
	}
	est.IsShaped = est.AvgGapUs > shapedMinAvgGapUs &&
		est.BurstCount > shapedMinBursts &&
		est.BurstRatio < shapedMaxRatio

	est.IdleSlopeBps = est.MeasuredBps
	est.SendSlopeBps = -(e.linkSpeedBps - est.IdleSlopeBps)
	est.HiCreditBytes = float64(maxBurstBytes) * hiCreditMargin
	est.LoCreditBytes = -est.HiCreditBytes
	est.BandwidthPercent = est.IdleSlopeBps / e.linkSpeedBps * 100

	if est.IsShaped {
		est.Confidence = model.ConfidenceHigh
	} else {
		est.Confidence = model.ConfidenceLow
	}
	return est, nil
}
