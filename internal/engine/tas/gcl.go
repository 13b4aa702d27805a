package tas

import (
	"fmt"
	"math"
	"slices"

	"TSNSpectra/internal/model"
)

// DefaultMaxGCLEntries bounds the length of a built gate control list.
const DefaultMaxGCLEntries = 256

// GCLResult is a gate control list covering exactly one cycle.
// Truncated is set when the list had to be shortened to the entry limit; the
// tail is then folded into the last kept entry so the durations still add up.
type GCLResult struct {
	Entries   []model.GCLEntry
	Truncated bool
}

type gateEvent struct {
	at    uint64
	class uint8
	delta int
}

// GCLBuilder merges per-class gate windows into one schedule.
type GCLBuilder struct {
	maxEntries int
}

// NewGCLBuilder creates a builder; maxEntries <= 0 selects DefaultMaxGCLEntries.
func NewGCLBuilder(maxEntries int) *GCLBuilder {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxGCLEntries
	}
	return &GCLBuilder{maxEntries: maxEntries}
}

// Build sweeps over the window start and end events of all classes and emits
// one entry per interval of constant gate state. Entries sum to cycleNs and no
// two neighbours share a gate mask.
func (b *GCLBuilder) Build(windows [model.NumClasses][]model.GateWindow, cycleNs uint64) (GCLResult, error) {
	if cycleNs == 0 {
		return GCLResult{}, fmt.Errorf("zero cycle: %w", model.ErrInsufficientData)
	}
	if cycleNs > math.MaxUint32 {
		return GCLResult{}, fmt.Errorf("cycle %d ns: %w", cycleNs, model.ErrCycleTooLong)
	}

	// open[c] counts the windows of class c covering the current instant.
	var open [model.NumClasses]int
	var events []gateEvent

	for c, ws := range windows {
		class := uint8(c)
		for _, w := range ws {
			if w.DurationNs == 0 {
				continue
			}
			start := w.StartOffsetNs % cycleNs
			if w.DurationNs >= cycleNs {
				open[class]++
				continue
			}
			end := start + w.DurationNs
			switch {
			case start == 0:
				open[class]++
				events = append(events, gateEvent{at: end, class: class, delta: -1})
			case end > cycleNs:
				open[class]++
				events = append(events,
					gateEvent{at: end - cycleNs, class: class, delta: -1},
					gateEvent{at: start, class: class, delta: +1})
			case end == cycleNs:
				events = append(events, gateEvent{at: start, class: class, delta: +1})
			default:
				events = append(events,
					gateEvent{at: start, class: class, delta: +1},
					gateEvent{at: end, class: class, delta: -1})
			}
		}
	}

	slices.SortFunc(events, func(a, b gateEvent) int {
		switch {
		case a.at < b.at:
			return -1
		case a.at > b.at:
			return 1
		}
		return 0
	})

	mask := func() uint8 {
		var m uint8
		for c, n := range open {
			if n > 0 {
				m |= 1 << c
			}
		}
		return m
	}

	var raw []model.GCLEntry
	var last uint64
	for i := 0; i < len(events); {
		at := events[i].at
		if at > last {
			raw = append(raw, model.GCLEntry{GateStates: mask(), DurationNs: uint32(at - last)})
			last = at
		}
		// Apply every event of this instant before the next entry is emitted.
		for ; i < len(events) && events[i].at == at; i++ {
			open[events[i].class] += events[i].delta
		}
	}
	if last < cycleNs {
		raw = append(raw, model.GCLEntry{GateStates: mask(), DurationNs: uint32(cycleNs - last)})
	}

	res := GCLResult{Entries: mergeRuns(raw)}
	if len(res.Entries) > b.maxEntries {
		kept := res.Entries[:b.maxEntries]
		tail := &kept[b.maxEntries-1]
		for _, e := range res.Entries[b.maxEntries:] {
			tail.GateStates |= e.GateStates
			tail.DurationNs += e.DurationNs
		}
		// The widened tail can now match its predecessor.
		res.Entries = mergeRuns(kept)
		res.Truncated = true
	}
	return res, nil
}

// mergeRuns folds every entry into its predecessor when both carry the same
// gate mask.
func mergeRuns(entries []model.GCLEntry) []model.GCLEntry {
	merged := make([]model.GCLEntry, 0, len(entries))
	for _, e := range entries {
		if n := len(merged); n > 0 && merged[n-1].GateStates == e.GateStates {
			merged[n-1].DurationNs += e.DurationNs
			continue
		}
		merged = append(merged, e)
	}
	return merged
}

// CycleOf returns the sum of the entry durations.
func CycleOf(entries []model.GCLEntry) uint64 {
	var sum uint64
	for _, e := range entries {
		sum += uint64(e.DurationNs)
	}
	return sum
}
