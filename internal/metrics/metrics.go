// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Table outcomes.
const (
	OutcomeScanned = "scanned"
	OutcomeSkipped = "skipped"
)

// Scan statuses.
const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

var (
	Scans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "piiscan_scans_total",
			Help: "Number of scans by engine and final status",
		},
		[]string{"engine", "status"},
	)
	Tables = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "piiscan_tables_total",
			Help: "Number of tables processed by outcome",
		},
		[]string{"engine", "outcome"},
	)
	Findings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "piiscan_findings_total",
			Help: "Findings reported by type and severity",
		},
		[]string{"type", "severity"},
	)
	TableLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "piiscan_table_scan_seconds",
			Help:    "Time spent sampling and classifying one table",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"engine"},
	)
	ScanLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "piiscan_scan_seconds",
			Help:    "Wall-clock duration of a whole scan",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"engine"},
	)
)

func init() {
	prometheus.MustRegister(
		Scans,
		Tables,
		Findings,
		TableLatency,
		ScanLatency,
	)
}

// Prometheus records scan events into the package collectors. The zero
// value is ready to use.
type Prometheus struct{}

// TableDone counts one table and, for scanned tables, observes its latency.
func (Prometheus) TableDone(engine, outcome string, elapsed time.Duration) {
	Tables.WithLabelValues(engine, outcome).Inc()
	if outcome == OutcomeScanned {
		TableLatency.WithLabelValues(engine).Observe(elapsed.Seconds())
	}
}

// Finding counts one finding.
func (Prometheus) Finding(findingType, severity string) {
	Findings.WithLabelValues(findingType, severity).Inc()
}

// ScanDone counts a finished scan and observes its duration.
func (Prometheus) ScanDone(engine, status string, elapsed time.Duration) {
	Scans.WithLabelValues(engine, status).Inc()
	ScanLatency.WithLabelValues(engine).Observe(elapsed.Seconds())
}
