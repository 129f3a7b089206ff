package upload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "mediachat"

var (
	// uploadAttemptsTotal counts single upload requests.
	// Labels:
	//   - strategy: multipart or raw
	//   - status: HTTP status code, or "transport_error"
	uploadAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "upload",
			Name:      "attempts_total",
			Help:      "Total number of file upload requests by strategy and status",
		},
		[]string{"strategy", "status"},
	)

	// uploadDuration measures a whole Upload call across all attempts.
	uploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "upload",
			Name:      "duration_seconds",
			Help:      "Duration of file uploads including fallbacks, in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"outcome"},
	)
)

const (
	strategyMultipart = "multipart"
	strategyRaw       = "raw"

	statusTransportError = "transport_error"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// RecordAttempt records one upload request.
func RecordAttempt(strategy, status string) {
	uploadAttemptsTotal.WithLabelValues(strategy, status).Inc()
}

// RecordUpload records the result of an Upload call.
func RecordUpload(outcome string, durationSeconds float64) {
	uploadDuration.WithLabelValues(outcome).Observe(durationSeconds)
}
