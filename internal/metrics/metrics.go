package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	CurrentLatencyMs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "echometer_current_latency_ms",
		Help: "Most recent mouth-to-ear latency for display (server-corrected)",
	})
	HistorySize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "echometer_history_size",
		Help: "Number of measurements currently held in the bounded history",
	})
)

// Counters
var (
	TurnsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echometer_turns_started_total",
		Help: "Total conversation turns opened by local speech onset",
	})
	TurnsTimedOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echometer_turns_timed_out_total",
		Help: "Turns abandoned with no agent response within the timeout",
	})
	MeasurementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echometer_measurements_total",
		Help: "Latency measurements recorded by source",
	}, []string{"source"})
	ReportErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echometer_report_errors_total",
		Help: "Malformed agent reports dropped",
	})
)

// Histograms
var (
	TurnLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "echometer_turn_latency_ms",
		Help:    "Mouth-to-ear latency in milliseconds by source",
		Buckets: []float64{100, 200, 300, 450, 600, 800, 1000, 2000, 5000, 8000},
	}, []string{"source"})
)
