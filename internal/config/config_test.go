package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: "http://127.0.0.1:8045/v1/"
  api_key: "test_api_key"
defaults:
  chat_model: "claude-opus-4-5"
video:
  fps: 5
attachments:
  inline_threshold_mb: 20
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8045/v1", cfg.API.BaseURL, "trailing slash is trimmed")
	assert.Equal(t, "test_api_key", cfg.API.APIKey)
	assert.Equal(t, "claude-opus-4-5", cfg.Defaults.ChatModel)
	assert.Equal(t, 5, cfg.Video.FPS)
	assert.Equal(t, int64(20*1024*1024), cfg.Attachments.InlineThresholdBytes())

	// Untouched values come from the embedded defaults.
	assert.Equal(t, "gemini-3-pro-image", cfg.Defaults.ImageModel)
	assert.Equal(t, 360, cfg.Video.Height)
	assert.Equal(t, "Antigravity/4.0.6", cfg.API.UserAgent)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileNotExists_FallsBackToDefault(t *testing.T) {
	cfg, err := Load("non_existent_file.yaml")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ".cache/optimized_videos", cfg.Video.CacheDir)
}

func TestLoadDefault(t *testing.T) {
	cfg, err := LoadDefault()
	require.NoError(t, err)

	assert.Equal(t, "gemini-3-pro", cfg.Chat.Downgrade.From)
	assert.Equal(t, "gemini-3-flash", cfg.Chat.Downgrade.To)
	assert.Equal(t, int64(10*1024*1024), cfg.Video.CompressThresholdBytes())
	assert.Equal(t, 10*time.Minute, cfg.API.GetChatTimeout())
	assert.NotEmpty(t, DefaultConfigBytes())
}

func TestLoad_WithEnvVars(t *testing.T) {
	t.Setenv("TEST_API_KEY", "api-key-from-env")
	t.Setenv("MEDIACHAT_BASE_URL", "https://gateway.example.com/v1")

	path := writeConfig(t, `
api:
  base_url: "http://ignored.example.com"
  api_key: "${TEST_API_KEY}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "api-key-from-env", cfg.API.APIKey)
	assert.Equal(t, "https://gateway.example.com/v1", cfg.API.BaseURL, "env var overrides file")
}

func TestValidate_MissingCredentials(t *testing.T) {
	t.Setenv("MEDIACHAT_BASE_URL", "")
	t.Setenv("MEDIACHAT_API_KEY", "")

	cfg, err := LoadDefault()
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.base_url is required")
	assert.Contains(t, err.Error(), "api.api_key is required")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "relative base url",
			mutate:  func(c *Config) { c.API.BaseURL = "localhost/v1" },
			wantErr: "api.base_url must be an absolute URL",
		},
		{
			name:    "bad duration",
			mutate:  func(c *Config) { c.API.UploadTimeout = "forever" },
			wantErr: "api.upload_timeout: invalid duration format",
		},
		{
			name:    "half downgrade rule",
			mutate:  func(c *Config) { c.Chat.Downgrade.To = "" },
			wantErr: "must be set together",
		},
		{
			name:    "zero fps",
			mutate:  func(c *Config) { c.Video.FPS = 0 },
			wantErr: "video.fps must be positive",
		},
		{
			name:    "negative inline threshold",
			mutate:  func(c *Config) { c.Attachments.InlineThresholdMB = -1 },
			wantErr: "attachments.inline_threshold_mb must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadDefault()
			require.NoError(t, err)
			cfg.API.BaseURL = "http://localhost:8045/v1"
			cfg.API.APIKey = "key"
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseDurationFallback(t *testing.T) {
	v := VideoConfig{Timeout: "not-a-duration"}
	assert.Equal(t, DefaultVideoTimeout, v.GetTimeout())

	v.Timeout = "90s"
	assert.Equal(t, 90*time.Second, v.GetTimeout())
}
