package video

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "mediachat"

var (
	// optimizeDuration measures a full Optimize call.
	// Labels:
	//   - outcome: cache_hit, transcoded or degraded
	optimizeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "video",
			Name:      "optimize_duration_seconds",
			Help:      "Duration of video optimization in seconds",
			Buckets:   []float64{0.01, 0.1, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"outcome"},
	)

	// cacheHitsTotal counts optimizations served from the on-disk cache.
	cacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "video",
			Name:      "cache_hits_total",
			Help:      "Total number of optimized videos served from cache",
		},
	)

	// encodesTotal counts transcoding attempts.
	// Labels:
	//   - path: hardware or software
	//   - status: success or error
	encodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "video",
			Name:      "encodes_total",
			Help:      "Total number of transcoding attempts by encoder path",
		},
		[]string{"path", "status"},
	)
)

const (
	outcomeCacheHit   = "cache_hit"
	outcomeTranscoded = "transcoded"
	outcomeDegraded   = "degraded"

	pathHardware = "hardware"
	pathSoftware = "software"

	statusSuccess = "success"
	statusError   = "error"
)

// RecordOptimize records the result of one Optimize call.
func RecordOptimize(outcome string, durationSeconds float64) {
	optimizeDuration.WithLabelValues(outcome).Observe(durationSeconds)
	if outcome == outcomeCacheHit {
		cacheHitsTotal.Inc()
	}
}

// RecordEncode records a single encoder attempt.
func RecordEncode(path string, success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	encodesTotal.WithLabelValues(path, status).Inc()
}
