package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/runixer/mediachat/internal/testutil"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliResult struct {
	stdout string
	stderr string
	err    error
}

// runCLI executes the root command with args and captures both streams.
// A fake transcoder is used unless opts sets one.
func runCLI(t *testing.T, opts *rootOptions, args ...string) cliResult {
	t.Helper()
	if opts == nil {
		opts = &rootOptions{}
	}
	if opts.transcoder == nil {
		opts.transcoder = testutil.NewFakeTranscoder(testutil.OptimizedVideo)
	}

	cmd := newRootCmd(opts)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// writeConfig creates a config file pointing at baseURL with per-test
// cache and output directories.
func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`log:
  level: "error"
api:
  base_url: %q
  api_key: "test_api_key"
video:
  cache_dir: %q
images:
  output_dir: %q
`, baseURL, filepath.Join(dir, "cache"), filepath.Join(dir, "images"))
	return testutil.WriteFile(t, dir, "config.yaml", []byte(content))
}

func TestMustGetHelpers(t *testing.T) {
	t.Run("panics on unregistered flags", func(t *testing.T) {
		cmd := &cobra.Command{}
		assert.Panics(t, func() { mustGetString(cmd, "nonexistent_flag") })
		assert.Panics(t, func() { mustGetStringArray(cmd, "nonexistent_flag") })
		assert.Panics(t, func() { mustGetFloat64(cmd, "nonexistent_flag") })
	})

	t.Run("reads registered flags", func(t *testing.T) {
		cmd := &cobra.Command{}
		cmd.Flags().String("name", "", "test")
		cmd.Flags().StringArray("file", nil, "test")
		cmd.Flags().Float64("temperature", 0, "test")
		require.NoError(t, cmd.Flags().Set("name", "value"))
		require.NoError(t, cmd.Flags().Set("file", "a.png"))
		require.NoError(t, cmd.Flags().Set("file", "b,c.png"))
		require.NoError(t, cmd.Flags().Set("temperature", "0.2"))

		assert.Equal(t, "value", mustGetString(cmd, "name"))
		assert.Equal(t, []string{"a.png", "b,c.png"}, mustGetStringArray(cmd, "file"))
		assert.InDelta(t, 0.2, mustGetFloat64(cmd, "temperature"), 1e-9)
	})
}

func TestFindConfigPath(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	path, err := findConfigPath("")
	require.NoError(t, err)
	assert.Empty(t, path, "no config file means defaults")

	_, err = findConfigPath(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "config file not found")

	testutil.WriteFile(t, dir, defaultConfigSubPath, []byte("log:\n  level: debug\n"))
	path, err = findConfigPath("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfigSubPath, path)

	explicit := testutil.WriteFile(t, dir, "custom.yaml", []byte("{}\n"))
	path, err = findConfigPath(explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, path)
}

func TestRoot_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := testutil.WriteFile(t, dir, "config.yaml", []byte("api:\n  api_key: \"k\"\n"))

	res := runCLI(t, nil, "models", "--config", cfgPath)
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "invalid configuration")
	assert.Contains(t, res.err.Error(), "api.base_url is required")
}

func TestRoot_MissingExplicitConfig(t *testing.T) {
	res := runCLI(t, nil, "models", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, res.err, "config file not found")
}

func TestRoot_MetricsFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[{"id":"gemini-3-pro"}]}`)
	}))
	defer server.Close()

	recordBuildInfo()
	metricsPath := filepath.Join(t.TempDir(), "metrics.prom")
	opts := &rootOptions{}
	res := runCLI(t, opts, "models", "--config", writeConfig(t, server.URL+"/v1"), "--metrics-file", metricsPath)
	require.NoError(t, res.err)
	require.NoError(t, opts.writeMetrics())

	metrics := testutil.ReadMetricsFile(t, metricsPath)
	testutil.AssertMetricExists(t, metrics, "mediachat_llm_requests_total", map[string]string{
		"kind":   "models",
		"status": "200",
	})
	testutil.AssertMetricValue(t, metrics, "mediachat_build_info", map[string]string{
		"version":    Version,
		"go_version": runtime.Version(),
	}, 1)
}

func TestWriteMetrics_Disabled(t *testing.T) {
	opts := &rootOptions{}
	assert.NoError(t, opts.writeMetrics())
}

func TestGetSession_NotInitialized(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	_, err := getSession(cmd)
	assert.ErrorContains(t, err, "services not initialized")
}
