package metrics

import (
	"strconv"

	"TSNSpectra/internal/model"

	"github.com/prometheus/client_golang/prometheus"
)

// ReportMetrics holds the gauges describing the latest analysis.
type ReportMetrics struct {
	MeasuredBps  *prometheus.GaugeVec
	IdleSlopeBps *prometheus.GaugeVec
	HiCredit     *prometheus.GaugeVec
	Shaped       *prometheus.GaugeVec
	CycleNs      prometheus.Gauge
	GCLEntries   prometheus.Gauge
	Reports      prometheus.Counter
}

// NewReportMetrics creates the analysis gauges and registers them.
func NewReportMetrics(registry prometheus.Registerer) *ReportMetrics {
	classLabel := []string{"class"}
	m := &ReportMetrics{
		MeasuredBps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cbs",
			Name:      "measured_bits_per_second",
			Help:      "Measured rate of the class over the observation period",
		}, classLabel),
		IdleSlopeBps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cbs",
			Name:      "idle_slope_bits_per_second",
			Help:      "Estimated CBS idle slope",
		}, classLabel),
		HiCredit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cbs",
			Name:      "hi_credit_bytes",
			Help:      "Estimated CBS hi credit",
		}, classLabel),
		Shaped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cbs",
			Name:      "shaped",
			Help:      "1 when the class looks CBS shaped",
		}, classLabel),
		CycleNs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tas",
			Name:      "cycle_nanoseconds",
			Help:      "Inferred TAS cycle, 0 when none was found",
		}),
		GCLEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tas",
			Name:      "gcl_entries",
			Help:      "Entries of the inferred gate control list",
		}),
		Reports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Analysis reports produced",
		}),
	}

	registry.MustRegister(
		m.MeasuredBps,
		m.IdleSlopeBps,
		m.HiCredit,
		m.Shaped,
		m.CycleNs,
		m.GCLEntries,
		m.Reports,
	)
	return m
}

// Observe replaces the gauges with the values of r.
func (m *ReportMetrics) Observe(r *model.Report) {
	m.Reports.Inc()
	m.MeasuredBps.Reset()
	m.IdleSlopeBps.Reset()
	m.HiCredit.Reset()
	m.Shaped.Reset()

	for _, c := range r.Classes {
		if c.Estimate == nil {
			continue
		}
		label := strconv.Itoa(int(c.Class))
		m.MeasuredBps.WithLabelValues(label).Set(c.Estimate.MeasuredBps)
		m.IdleSlopeBps.WithLabelValues(label).Set(c.Estimate.IdleSlopeBps)
		m.HiCredit.WithLabelValues(label).Set(c.Estimate.HiCreditBytes)
		shaped := 0.0
		if c.Estimate.IsShaped {
			shaped = 1
		}
		m.Shaped.WithLabelValues(label).Set(shaped)
	}

	if r.TAS == nil {
		m.CycleNs.Set(0)
		m.GCLEntries.Set(0)
		return
	}
	m.CycleNs.Set(float64(r.TAS.CycleNs))
	m.GCLEntries.Set(float64(len(r.TAS.GCL)))
}
