package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks outbound requests through the authenticated pipeline.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_upstream_requests_total",
			Help: "Total number of upstream requests made (by method and status).",
		},
		[]string{"method", "status"},
	)

	// Measures duration of upstream requests.
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authgate_upstream_request_duration_seconds",
			Help:    "Duration of upstream requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"method"},
	)

	// Tracks token refresh attempts by result.
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_token_refresh_total",
			Help: "Total number of token refresh attempts by result.",
		},
		[]string{"result"}, // ok | failed | no_refresh_token
	)

	// Counts callers that piggybacked on an in-flight refresh instead of issuing their own.
	RefreshWaiters = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authgate_refresh_waiters_total",
			Help: "Number of requests that waited on an in-flight token refresh.",
		},
	)

	// Counts auth-lost signals (credentials cleared, application must re-login).
	AuthLostTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authgate_auth_lost_total",
			Help: "Number of times credentials were cleared after a failed refresh.",
		},
	)

	// Tracks NATS lifecycle events published by subject and result.
	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_nats_messages_total",
			Help: "Total number of NATS messages published.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	// Tracks total errors (aggregated).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_errors_total",
			Help: "Count of errors by component.",
		},
		[]string{"component", "reason"},
	)
)

// ObserveDuration records the time taken since start and updates the given histogram.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// silently ignore counters; they're not meant for duration tracking
	}
}

func IncUpstreamRequest(method, status string) {
	UpstreamRequestsTotal.WithLabelValues(method, status).Inc()
}

func IncRefresh(result string) {
	RefreshTotal.WithLabelValues(result).Inc()
}

func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}
