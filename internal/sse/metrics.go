package sse

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var malformedLinesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "mediachat",
		Subsystem: "stream",
		Name:      "malformed_lines_total",
		Help:      "Total number of stream data lines skipped because they were not valid JSON",
	},
)

// RecordMalformedLine records a skipped stream line.
func RecordMalformedLine() {
	malformedLinesTotal.Inc()
}
