package files

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/runixer/mediachat/internal/media"
)

const metricsNamespace = "mediachat"

var (
	// attachmentsTotal counts planned attachments.
	// Labels:
	//   - kind: image, video or other
	//   - transport: skipped, inline, uploaded or dropped
	attachmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "attachment",
			Name:      "total",
			Help:      "Total number of attachments by kind and delivery transport",
		},
		[]string{"kind", "transport"},
	)

	// attachmentSizeBytes measures the size of files actually sent.
	// Labels:
	//   - transport: inline or uploaded
	attachmentSizeBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "attachment",
			Name:      "size_bytes",
			Help:      "Size of attachments sent to the gateway in bytes",
			// 100KB, 500KB, 1MB, 5MB, 10MB, 20MB, 50MB, 100MB, 500MB
			Buckets: []float64{102400, 512000, 1048576, 5242880, 10485760, 20971520, 52428800, 104857600, 524288000},
		},
		[]string{"transport"},
	)
)

// RecordAttachment records how one attachment was delivered.
func RecordAttachment(kind media.Kind, transport Transport, sizeBytes int64) {
	attachmentsTotal.WithLabelValues(string(kind), string(transport)).Inc()
	if sizeBytes > 0 {
		attachmentSizeBytes.WithLabelValues(string(transport)).Observe(float64(sizeBytes))
	}
}
