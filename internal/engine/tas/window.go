package tas

import (
	"fmt"
	"math"

	"TSNSpectra/internal/model"
)

const (
	// MinWindowObservations is the least number of observations a class needs
	// for window detection.
	MinWindowObservations = 10
	// DefaultWindowBins is the phase resolution of window detection.
	DefaultWindowBins = 1000
	// DefaultThresholdRatio is the fraction of the mean bin occupancy a bin
	// must reach to count as "gate open".
	DefaultThresholdRatio = 0.3
	// DefaultMaxWindows bounds the windows reported for one class.
	DefaultMaxWindows = 64
)

// WindowResult lists the open windows of one class, ordered by start offset.
// Truncated is set when more than the configured number of windows was found.
type WindowResult struct {
	Windows   []model.GateWindow
	Truncated bool
}

// WindowDetector finds the gate-open intervals of a class inside a cycle.
type WindowDetector struct {
	bins       int
	ratio      float64
	maxWindows int
}

// NewWindowDetector creates a detector; zero arguments select the defaults.
func NewWindowDetector(bins int, ratio float64, maxWindows int) *WindowDetector {
	if bins <= 0 {
		bins = DefaultWindowBins
	}
	if ratio <= 0 {
		ratio = DefaultThresholdRatio
	}
	if maxWindows <= 0 {
		maxWindows = DefaultMaxWindows
	}
	return &WindowDetector{bins: bins, ratio: ratio, maxWindows: maxWindows}
}

// Detect bins the observations of data by phase relative to origin and
// returns the runs of bins at or above the presence threshold. A run that
// reaches the end of the cycle while the first bin is also open is merged with
// the run starting at phase zero into one wrapping window.
func (d *WindowDetector) Detect(data *model.ClassData, origin, cycleNs uint64) (WindowResult, error) {
	if cycleNs == 0 {
		return WindowResult{}, fmt.Errorf("class %d: zero cycle: %w", data.Class, model.ErrInsufficientData)
	}
	if len(data.Observations) < MinWindowObservations {
		return WindowResult{}, fmt.Errorf("class %d has %d observations, need %d: %w",
			data.Class, len(data.Observations), MinWindowObservations, model.ErrInsufficientData)
	}

	bins := d.bins
	if uint64(bins) > cycleNs {
		bins = int(cycleNs)
	}
	counts := histogram(data.Observations, origin, cycleNs, bins)

	mean := float64(len(data.Observations)) / float64(bins)
	threshold := math.Max(d.ratio*mean, 1)
	open := func(i int) bool {
		return i < bins && float64(counts[i]) >= threshold
	}

	var windows []model.GateWindow
	inWindow := false
	start := 0
	// i == bins is a synthetic closed bin that ends a run still open at the
	// end of the cycle.
	for i := 0; i <= bins; i++ {
		switch {
		case open(i) && !inWindow:
			inWindow = true
			start = i
		case !open(i) && inWindow:
			inWindow = false
			w := model.GateWindow{
				StartOffsetNs: binOffset(start, bins, cycleNs),
				DurationNs:    binOffset(i, bins, cycleNs) - binOffset(start, bins, cycleNs),
			}
			if i == bins && start > 0 && open(0) && len(windows) > 0 && windows[0].StartOffsetNs == 0 {
				w.DurationNs += windows[0].DurationNs
				if w.DurationNs > cycleNs {
					w.DurationNs = cycleNs
				}
				windows = windows[1:]
			}
			windows = append(windows, w)
		}
	}

	res := WindowResult{Windows: windows}
	if len(res.Windows) > d.maxWindows {
		res.Windows = res.Windows[:d.maxWindows]
		res.Truncated = true
	}
	return res, nil
}
