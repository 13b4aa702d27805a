package model

import "time"

// ClassReport is the CBS side of the analysis for one traffic class.
type ClassReport struct {
	Class        uint8  `json:"class" yaml:"class"`
	Observations int    `json:"observations" yaml:"observations"`
	TotalBytes   uint64 `json:"total_bytes" yaml:"total_bytes"`
	TxCount      uint64 `json:"tx_count" yaml:"tx_count"`
	Dropped      uint64 `json:"dropped" yaml:"dropped"`
	// Inter-arrival statistics; gaps of a second or more are left out.
	AvgIntervalUs    float64      `json:"avg_interval_us" yaml:"avg_interval_us"`
	StddevIntervalUs float64      `json:"stddev_interval_us" yaml:"stddev_interval_us"`
	Bursts           int          `json:"bursts" yaml:"bursts"`
	BurstsTruncated  bool         `json:"bursts_truncated" yaml:"bursts_truncated"`
	Estimate         *CBSEstimate `json:"estimate,omitempty" yaml:"estimate,omitempty"`
	// Status is "ok" or the reason Estimate is absent.
	Status string `json:"status" yaml:"status"`
}

// CandidateScore is the periodicity score of one cycle hypothesis.
type CandidateScore struct {
	CycleNs uint64  `json:"cycle_ns" yaml:"cycle_ns"`
	Score   float64 `json:"score" yaml:"score"`
}

// ClassWindows lists the gate windows detected for one class.
type ClassWindows struct {
	Class   uint8        `json:"class" yaml:"class"`
	Windows []GateWindow `json:"windows" yaml:"windows"`
	// Truncated is set when the window limit was reached; later windows
	// are missing from Windows and from the GCL.
	Truncated bool   `json:"truncated" yaml:"truncated"`
	Status    string `json:"status" yaml:"status"`
}

// TASReport is the time-aware shaper side of the analysis.
type TASReport struct {
	CycleNs      uint64           `json:"cycle_ns" yaml:"cycle_ns"`
	Overridden   bool             `json:"overridden" yaml:"overridden"`
	Score        float64          `json:"score" yaml:"score"`
	Candidates   []CandidateScore `json:"candidates,omitempty" yaml:"candidates,omitempty"`
	Windows      []ClassWindows   `json:"windows" yaml:"windows"`
	GCL          []GCLEntry       `json:"gcl" yaml:"gcl"`
	GCLTruncated bool             `json:"gcl_truncated" yaml:"gcl_truncated"`
}

// Report is the complete result of one measurement session.
type Report struct {
	SessionID    string        `json:"session_id" yaml:"session_id"`
	Mode         string        `json:"mode" yaml:"mode"`
	CreatedAt    time.Time     `json:"created_at" yaml:"created_at"`
	LinkSpeedBps float64       `json:"link_speed_bps" yaml:"link_speed_bps"`
	Classes      []ClassReport `json:"classes" yaml:"classes"`
	TAS          *TASReport    `json:"tas,omitempty" yaml:"tas,omitempty"`
	// TASError is set instead of TAS when cycle detection failed or the
	// mode left TAS analysis out.
	TASError string `json:"tas_error,omitempty" yaml:"tas_error,omitempty"`
	// Invalid counts observations that carried an out-of-range class.
	Invalid uint64 `json:"invalid" yaml:"invalid"`
}

// Class returns the report of class c, if it was analysed.
func (r *Report) Class(c uint8) (ClassReport, bool) {
	for _, cr := range r.Classes {
		if cr.Class == c {
			return cr, true
		}
	}
	return ClassReport{}, false
}
