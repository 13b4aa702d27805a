// Package metrics exposes session and analysis state to Prometheus.
package metrics

import (
	"strconv"

	"TSNSpectra/internal/model"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tsn"

// SessionStats is the read side of a live session.
type SessionStats interface {
	ClassStats(c uint8) (observations int, bytes, tx, dropped uint64)
	Invalid() uint64
	Queued() int
}

// SessionCollector reads the sample stores at scrape time.
type SessionCollector struct {
	stats SessionStats

	observationsDesc *prometheus.Desc
	bytesDesc        *prometheus.Desc
	txDesc           *prometheus.Desc
	droppedDesc      *prometheus.Desc
	invalidDesc      *prometheus.Desc
	queuedDesc       *prometheus.Desc
}

// NewSessionCollector creates a collector over stats.
func NewSessionCollector(stats SessionStats) *SessionCollector {
	subsystem := "session"
	classLabel := []string{"class"}

	return &SessionCollector{
		stats: stats,
		observationsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "observations"),
			"Observations held in the sample store",
			classLabel, nil,
		),
		bytesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "observed_bytes_total"),
			"Bytes observed per class",
			classLabel, nil,
		),
		txDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "tx_packets_total"),
			"Frames injected per class",
			classLabel, nil,
		),
		droppedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "dropped_total"),
			"Observations dropped because the sample store was full",
			classLabel, nil,
		),
		invalidDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "invalid_total"),
			"Observations rejected for an out-of-range class",
			nil, nil,
		),
		queuedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "queued"),
			"Observations waiting to be stored",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *SessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.observationsDesc
	ch <- c.bytesDesc
	ch <- c.txDesc
	ch <- c.droppedDesc
	ch <- c.invalidDesc
	ch <- c.queuedDesc
}

// Collect implements prometheus.Collector.
func (c *SessionCollector) Collect(ch chan<- prometheus.Metric) {
	for class := uint8(0); class < model.NumClasses; class++ {
		label := strconv.Itoa(int(class))
		obs, bytes, tx, dropped := c.stats.ClassStats(class)
		ch <- prometheus.MustNewConstMetric(c.observationsDesc, prometheus.GaugeValue, float64(obs), label)
		ch <- prometheus.MustNewConstMetric(c.bytesDesc, prometheus.CounterValue, float64(bytes), label)
		ch <- prometheus.MustNewConstMetric(c.txDesc, prometheus.CounterValue, float64(tx), label)
		ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.CounterValue, float64(dropped), label)
	}
	ch <- prometheus.MustNewConstMetric(c.invalidDesc, prometheus.CounterValue, float64(c.stats.Invalid()))
	ch <- prometheus.MustNewConstMetric(c.queuedDesc, prometheus.GaugeValue, float64(c.stats.Queued()))
}
