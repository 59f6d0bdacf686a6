// Package metrics holds the prometheus collectors for recognition traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal counts upstream attempts per endpoint and classified outcome.
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai4latex_attempts_total",
			Help: "Total number of upstream inference attempts",
		},
		[]string{"endpoint", "outcome"},
	)

	// AttemptDuration tracks upstream attempt latency.
	AttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai4latex_attempt_duration_seconds",
			Help:    "Upstream inference attempt latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"endpoint"},
	)

	// RecognitionsTotal counts finished recognition requests by result kind.
	RecognitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai4latex_recognitions_total",
			Help: "Total number of recognition requests by result",
		},
		[]string{"result"},
	)

	// RecognitionDuration tracks end-to-end recognition latency.
	RecognitionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ai4latex_recognition_duration_seconds",
			Help:    "End-to-end recognition latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
		},
	)

	// RateLimitedTotal counts requests rejected by the admission limiter.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ai4latex_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)
