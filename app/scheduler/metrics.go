package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_sweeps_total",
			Help: "Total number of scheduled message sweeps run",
		},
	)

	// Per-row outcomes: promoted, skipped, failed
	sweepRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_rows_total",
			Help: "Scheduled messages handled by sweeps, by outcome",
		},
		[]string{"outcome"},
	)
)

func recordSweep(res SweepResult) {
	sweepsTotal.Inc()
	sweepRowsTotal.WithLabelValues("promoted").Add(float64(res.Promoted))
	sweepRowsTotal.WithLabelValues("skipped").Add(float64(res.Skipped))
	sweepRowsTotal.WithLabelValues("failed").Add(float64(res.Failed))
}
