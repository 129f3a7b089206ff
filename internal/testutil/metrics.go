package testutil

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
)

// ReadMetricsFile returns the contents of a Prometheus text-format file.
func ReadMetricsFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read metrics file %s: %v", path, err)
	}
	return string(data)
}

// ParseMetricValue finds the first sample of metricName whose labels include
// every pair in labels. It returns the sample value and its full label set.
func ParseMetricValue(metrics, metricName string, labels map[string]string) (float64, map[string]string, error) {
	for _, line := range strings.Split(metrics, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, metricName) {
			continue
		}

		// Format: metric_name{label1="value1",label2="value2"} value
		remaining := strings.TrimPrefix(line, metricName)
		if remaining == "" || (remaining[0] != '{' && remaining[0] != ' ') {
			continue
		}

		got := make(map[string]string)
		if remaining[0] == '{' {
			end := strings.Index(remaining, "}")
			if end == -1 {
				return 0, nil, fmt.Errorf("invalid metric line %q", line)
			}
			for _, pair := range strings.Split(remaining[1:end], ",") {
				parts := strings.SplitN(pair, "=", 2)
				if len(parts) == 2 {
					got[strings.TrimSpace(parts[0])] = strings.Trim(parts[1], `"`)
				}
			}
			remaining = remaining[end+1:]
		}

		if !labelsMatch(got, labels) {
			continue
		}

		fields := strings.Fields(remaining)
		if len(fields) == 0 {
			return 0, nil, fmt.Errorf("metric line %q has no value", line)
		}
		value, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return 0, nil, fmt.Errorf("metric line %q: %w", line, err)
		}
		return value, got, nil
	}
	return 0, nil, fmt.Errorf("metric %q with labels %v not found", metricName, labels)
}

func labelsMatch(got, want map[string]string) bool {
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// AssertMetricExists fails the test when metricName has no sample with labels.
func AssertMetricExists(t *testing.T, metrics, metricName string, labels map[string]string) {
	t.Helper()
	if _, _, err := ParseMetricValue(metrics, metricName, labels); err != nil {
		t.Fatalf("metric %q does not exist: %v", metricName, err)
	}
}

// AssertMetricValue asserts the value of a metric sample.
func AssertMetricValue(t *testing.T, metrics, metricName string, labels map[string]string, want float64) {
	t.Helper()
	value, _, err := ParseMetricValue(metrics, metricName, labels)
	if err != nil {
		t.Fatalf("metric %q does not exist: %v", metricName, err)
	}
	if value != want {
		t.Errorf("metric %q%v has value %v, want %v", metricName, labels, value, want)
	}
}
