package model

// GateWindow is a contiguous phase interval of a TAS cycle during which a
// class's gate is inferred open. StartOffsetNs+DurationNs may exceed the cycle
// length, in which case the window wraps into the next cycle.
type GateWindow struct {
	StartOffsetNs uint64 `json:"start_offset_ns" yaml:"start_offset_ns"`
	DurationNs    uint64 `json:"duration_ns" yaml:"duration_ns"`
}

// EndOffsetNs is the unwrapped end of the window.
func (w GateWindow) EndOffsetNs() uint64 {
	return w.StartOffsetNs + w.DurationNs
}

// GCLEntry is one row of a gate control list. Bit b of GateStates set means
// the gate of class b is open for DurationNs.
type GCLEntry struct {
	GateStates uint8  `json:"gate_states" yaml:"gate_states"`
	DurationNs uint32 `json:"duration_ns" yaml:"duration_ns"`
}

// IsOpen reports whether the gate of class is open during the entry.
func (e GCLEntry) IsOpen(class uint8) bool {
	return e.GateStates&(1<<class) != 0
}
