package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "mediachat"

var (
	// llmRequestDuration measures the time until response headers arrive.
	// Labels:
	//   - model: model actually used for the final attempt
	//   - kind: stream, complete or models
	//   - status: HTTP status code, or "transport_error"
	llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Duration of gateway chat requests until response headers, in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"model", "kind", "status"},
	)

	// llmRequestsTotal counts gateway chat requests.
	llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total number of gateway chat requests",
		},
		[]string{"model", "kind", "status"},
	)

	// llmDowngradesTotal counts 503-triggered model substitutions.
	llmDowngradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "llm",
			Name:      "downgrades_total",
			Help:      "Total number of requests reissued with a downgraded model",
		},
		[]string{"from", "to"},
	)
)

const (
	kindStream   = "stream"
	kindComplete = "complete"
	kindModels   = "models"

	statusTransportError = "transport_error"
)

// RecordLLMRequest records one gateway request.
func RecordLLMRequest(model, kind, status string, durationSeconds float64) {
	llmRequestDuration.WithLabelValues(model, kind, status).Observe(durationSeconds)
	llmRequestsTotal.WithLabelValues(model, kind, status).Inc()
}

// RecordLLMDowngrade records a model downgrade retry.
func RecordLLMDowngrade(from, to string) {
	llmDowngradesTotal.WithLabelValues(from, to).Inc()
}
