package model

// Confidence qualifies a CBS estimate.
type Confidence string

const (
	ConfidenceNone Confidence = "none"
	ConfidenceLow  Confidence = "low"
	ConfidenceHigh Confidence = "high"
)

// CBSEstimate is the inferred credit-based shaper configuration of one class.
// LoCreditBytes is the symmetric counterpart of HiCreditBytes and IdleSlopeBps
// is the measured rate whether or not the class looks shaped; both are
// approximations, not properties a real switch has to satisfy.
type CBSEstimate struct {
	MeasuredBps   float64 `json:"measured_bps" yaml:"measured_bps"`
	BurstRatio    float64 `json:"burst_ratio" yaml:"burst_ratio"`
	AvgGapUs      float64 `json:"avg_gap_us" yaml:"avg_gap_us"`
	BurstCount    int     `json:"burst_count" yaml:"burst_count"`
	AvgBurstUs    float64 `json:"avg_burst_us" yaml:"avg_burst_us"`
	MaxBurstBytes uint64  `json:"max_burst_bytes" yaml:"max_burst_bytes"`
	DurationMs    float64 `json:"duration_ms" yaml:"duration_ms"`
	IsShaped      bool    `json:"is_shaped" yaml:"is_shaped"`
	IdleSlopeBps  float64 `json:"idle_slope_bps" yaml:"idle_slope_bps"`
	SendSlopeBps  float64 `json:"send_slope_bps" yaml:"send_slope_bps"`
	HiCreditBytes float64 `json:"hi_credit_bytes" yaml:"hi_credit_bytes"`
	LoCreditBytes float64 `json:"lo_credit_bytes" yaml:"lo_credit_bytes"`
	// BandwidthPercent is IdleSlopeBps as a share of the link speed.
	BandwidthPercent float64    `json:"bandwidth_percent" yaml:"bandwidth_percent"`
	Confidence       Confidence `json:"confidence" yaml:"confidence"`
}
