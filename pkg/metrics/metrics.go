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

	// LifecycleTransitionsTotal tracks conversation status changes.
	LifecycleTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_lifecycle_transitions_total",
			Help: "Conversation lifecycle transitions by target status",
		},
		[]string{"status"},
	)

	// AIToggleTotal tracks AI enable/disable switches.
	AIToggleTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_ai_toggles_total",
			Help: "AI enabled flag changes",
		},
		[]string{"enabled"},
	)

	// HandoffsTotal tracks automatic AI-to-human handoffs.
	HandoffsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_handoffs_total",
			Help: "Automatic handoffs from AI to a human operator",
		},
		[]string{"reason"},
	)

	// MessagesTotal tracks messages created.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_messages_total",
			Help: "Total messages created",
		},
		[]string{"tenant_id", "sender"},
	)

	// RejectionsTotal tracks operations rejected by the controller.
	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_rejections_total",
			Help: "Controller operations rejected, by operation and error kind",
		},
		[]string{"operation", "kind"},
	)

	// ScheduledActionsTotal tracks recorded scheduled actions.
	ScheduledActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_scheduled_actions_total",
			Help: "Scheduled actions recorded",
		},
		[]string{"type"},
	)

	// LLMRequestDuration tracks LLM completion duration.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM completion duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// EventPublishFailures tracks events the notifier could not deliver.
	EventPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_event_publish_failures_total",
			Help: "Conversation events that failed to publish",
		},
		[]string{"type"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMRequest records metrics for an LLM completion.
func RecordLLMRequest(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMRequestDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordRejection records a rejected controller operation.
func RecordRejection(operation, kind string) {
	RejectionsTotal.WithLabelValues(operation, kind).Inc()
}
