package dispatch

import (
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Jobs accepted by a queue, partitioned by channel
	jobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_jobs_enqueued_total",
			Help: "Total number of dispatch jobs enqueued",
		},
		[]string{"channel"},
	)

	// Attempt outcomes: sent, retry, exhausted, permanent_failure
	jobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_jobs_processed_total",
			Help: "Total number of dispatch job attempts by outcome",
		},
		[]string{"channel", "outcome"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_job_duration_seconds",
			Help:    "Dispatch job attempt latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	deadLettersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_dead_letters_total",
			Help: "Total number of jobs moved to the dead-letter list",
		},
		[]string{"channel"},
	)
)

func recordEnqueued(channel models.MessageChannel) {
	jobsEnqueuedTotal.WithLabelValues(string(channel)).Inc()
}

func recordProcessed(channel models.MessageChannel, outcome string) {
	jobsProcessedTotal.WithLabelValues(string(channel), outcome).Inc()
}

func observeDuration(channel models.MessageChannel, d time.Duration) {
	jobDuration.WithLabelValues(string(channel)).Observe(d.Seconds())
}

func recordDeadLetter(channel models.MessageChannel) {
	deadLettersTotal.WithLabelValues(string(channel)).Inc()
}
