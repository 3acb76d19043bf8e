// Package metrics exposes optional Prometheus collectors for inspection and
// render stage durations. The collectors are registered with the default
// Prometheus registry at package initialisation (promauto); nothing is
// served unless a caller mounts Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "r2bctl_stage_duration_seconds",
			Help:    "Duration of one pipeline stage (an inspector or a renderer) in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"stage"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "r2bctl_runs_total",
			Help: "Total number of inspection runs by outcome",
		},
		[]string{"outcome"},
	)
)

// ObserveStage records how long one named stage took.
func ObserveStage(stage string, seconds float64) {
	stageDuration.WithLabelValues(stage).Observe(seconds)
}

// ObserveRun records one completed run's outcome ("success" or "failure").
func ObserveRun(outcome string) {
	runsTotal.WithLabelValues(outcome).Inc()
}

// Handler returns the Prometheus exposition HTTP handler, for callers that
// opt into serving /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
