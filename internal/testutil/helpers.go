package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/runixer/mediachat/internal/config"
)

// TestLogger returns a discarding logger for tests.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestConfig returns the embedded defaults pointed at baseURL, with the
// video cache placed in a per-test temp dir.
func TestConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg, err := config.LoadDefault()
	if err != nil {
		t.Fatalf("failed to load default config: %v", err)
	}
	cfg.API.BaseURL = baseURL
	cfg.API.APIKey = "test_api_key"
	cfg.Video.CacheDir = filepath.Join(t.TempDir(), "optimized_videos")
	cfg.Images.OutputDir = filepath.Join(t.TempDir(), "generated_assets")
	return cfg
}

// WriteFile creates dir/name with data and returns its path.
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// WriteSizedFile creates dir/name filled with size bytes of data.
func WriteSizedFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return WriteFile(t, dir, name, data)
}

// SetModTime pins the modification time of path.
func SetModTime(t *testing.T, path string, modTime time.Time) {
	t.Helper()
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("failed to set mtime on %s: %v", path, err)
	}
}
