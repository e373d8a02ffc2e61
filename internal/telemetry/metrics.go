package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	oracleRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prepdeck",
		Subsystem: "oracle",
		Name:      "requests_total",
		Help:      "AI gateway requests by action and outcome.",
	}, []string{"action", "outcome"})

	oracleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "prepdeck",
		Subsystem: "oracle",
		Name:      "request_duration_seconds",
		Help:      "AI gateway request latency by action.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"action"})

	sessionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "prepdeck",
		Name:      "sessions_completed_total",
		Help:      "Interview sessions that reached the final round.",
	})
)

// ObserveOracleRequest records one AI gateway call.
func ObserveOracleRequest(action, outcome string, d time.Duration) {
	oracleRequests.WithLabelValues(action, outcome).Inc()
	oracleDuration.WithLabelValues(action).Observe(d.Seconds())
}

// SessionCompleted counts one finished session.
func SessionCompleted() {
	sessionsCompleted.Inc()
}
