// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// UpdatesTotal tracks inbound platform updates by outcome.
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_updates_total",
			Help: "Inbound platform updates",
		},
		[]string{"outcome"},
	)

	// TriggersTotal tracks fired triggers by kind.
	TriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_triggers_total",
			Help: "Fired response triggers",
		},
		[]string{"kind"},
	)

	// RateLimitedTotal counts rate-limit rejections.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_rate_limited_total",
			Help: "Requests rejected by the per-user cooldown",
		},
	)

	// GenerationAttempts counts generation backend attempts.
	GenerationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_generation_attempts_total",
			Help: "Generation backend call attempts including retries",
		},
		[]string{"model"},
	)

	// GenerationDuration tracks generation call duration.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_generation_duration_seconds",
			Help:    "Generation backend call duration",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 45, 60},
		},
		[]string{"model", "status"},
	)

	// FragmentsSent counts outbound reply fragments.
	FragmentsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_fragments_sent_total",
			Help: "Reply fragments sent to the platform",
		},
	)

	// AutoReplyEvents counts auto-reply pub/sub traffic.
	AutoReplyEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_auto_reply_events_total",
			Help: "Auto-reply events by direction and outcome",
		},
		[]string{"direction", "outcome"},
	)

	// HistoryOps counts history store operations by result.
	HistoryOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_history_ops_total",
			Help: "History store operations",
		},
		[]string{"op", "result"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}
