package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Version is set at build time via -ldflags
var Version = "dev"

var buildInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "mediachat",
		Name:      "build_info",
		Help:      "Build information",
	},
	[]string{"version", "go_version"},
)

func recordBuildInfo() {
	buildInfo.WithLabelValues(Version, runtime.Version()).Set(1)
}

func main() {
	recordBuildInfo()

	opts := &rootOptions{}
	err := newRootCmd(opts).Execute()
	if werr := opts.writeMetrics(); werr != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", werr)
	}
	if err != nil {
		os.Exit(1)
	}
}
