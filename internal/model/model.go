package model

// NumClasses is the number of 802.1Q priority classes (PCP 0..7).
const NumClasses = 8

// Observation is a single captured packet, reduced to what the inference
// engine needs. It is immutable once recorded.
type Observation struct {
	TimestampNs uint64 // capture clock, nanoseconds
	Length      uint16 // bytes on the wire
	Class       uint8  // traffic class 0..7
}

// ClassData is a point-in-time copy of one class's sample store. The analysis
// pass only ever sees ClassData, never the live store.
type ClassData struct {
	Class        uint8
	Observations []Observation
	TotalBytes   uint64
	FirstTs      uint64
	LastTs       uint64
	TxCount      uint64
	TxBytes      uint64
	Dropped      uint64 // observations refused because the store was full
}

// Truncated reports whether the store hit its capacity during capture.
func (c *ClassData) Truncated() bool {
	return c.Dropped > 0
}

// Snapshot holds the state of all classes of a session once ingestion stopped.
type Snapshot struct {
	SessionID string
	Classes   [NumClasses]ClassData
	Invalid   uint64 // observations carrying an out-of-range class
}

// Origin returns the earliest first timestamp across all non-empty classes.
// Gate windows of every class are expressed relative to it so that they share
// the same phase zero.
func (s *Snapshot) Origin() uint64 {
	var origin uint64
	found := false
	for i := range s.Classes {
		c := &s.Classes[i]
		if len(c.Observations) == 0 {
			continue
		}
		if !found || c.FirstTs < origin {
			origin = c.FirstTs
			found = true
		}
	}
	return origin
}

// Burst is a contiguous run of observations of one class whose inter-arrival
// gaps all stay below the segmentation threshold.
type Burst struct {
	StartNs     uint64 `json:"start_ns" yaml:"start_ns"`
	EndNs       uint64 `json:"end_ns" yaml:"end_ns"`
	ByteCount   uint64 `json:"byte_count" yaml:"byte_count"`
	PacketCount uint64 `json:"packet_count" yaml:"packet_count"`
}

// DurationNs is the time between the first and last packet of the burst.
func (b Burst) DurationNs() uint64 {
	if b.EndNs < b.StartNs {
		return 0
	}
	return b.EndNs - b.StartNs
}
