package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultConfig []byte

const megabyte = 1024 * 1024

// APIConfig describes the remote model gateway.
type APIConfig struct {
	BaseURL        string `yaml:"base_url" env:"MEDIACHAT_BASE_URL"`
	APIKey         string `yaml:"api_key" env:"MEDIACHAT_API_KEY"`
	UserAgent      string `yaml:"user_agent" env:"MEDIACHAT_USER_AGENT"`
	ProxyURL       string `yaml:"proxy_url" env:"MEDIACHAT_PROXY_URL"`
	ChatTimeout    string `yaml:"chat_timeout"`
	UploadTimeout  string `yaml:"upload_timeout"`
	RequestTimeout string `yaml:"request_timeout"`
}

// DefaultsConfig holds the models used when the caller does not name one.
type DefaultsConfig struct {
	ChatModel    string `yaml:"chat_model" env:"MEDIACHAT_DEFAULT_CHAT_MODEL"`
	ImageModel   string `yaml:"image_model" env:"MEDIACHAT_DEFAULT_IMAGE_MODEL"`
	AnalyzeModel string `yaml:"analyze_model" env:"MEDIACHAT_DEFAULT_ANALYZE_MODEL"`
}

// DowngradeConfig names the single model substitution applied when the
// gateway answers 503 Service Unavailable.
type DowngradeConfig struct {
	From string `yaml:"from" env:"MEDIACHAT_DOWNGRADE_FROM"`
	To   string `yaml:"to" env:"MEDIACHAT_DOWNGRADE_TO"`
}

type ChatConfig struct {
	Temperature float64         `yaml:"temperature"`
	Downgrade   DowngradeConfig `yaml:"downgrade"`
}

// VideoConfig controls re-encoding of large videos before transport.
type VideoConfig struct {
	CacheDir            string `yaml:"cache_dir" env:"MEDIACHAT_VIDEO_CACHE_DIR"`
	FFmpegPath          string `yaml:"ffmpeg_path" env:"MEDIACHAT_FFMPEG_PATH"`
	CompressThresholdMB int64  `yaml:"compress_threshold_mb"`
	Height              int    `yaml:"height"`
	FPS                 int    `yaml:"fps"`
	HWEncoder           string `yaml:"hw_encoder" env:"MEDIACHAT_VIDEO_HW_ENCODER"`
	SWEncoder           string `yaml:"sw_encoder"`
	Timeout             string `yaml:"timeout"`
}

// AttachmentsConfig controls how attachments are transported.
type AttachmentsConfig struct {
	InlineThresholdMB int64 `yaml:"inline_threshold_mb"`
	Concurrency       int   `yaml:"concurrency"`
}

type ImagesConfig struct {
	OutputDir string `yaml:"output_dir"`
}

type Config struct {
	Log struct {
		Level string `yaml:"level" env:"MEDIACHAT_LOG_LEVEL"`
	} `yaml:"log"`
	API         APIConfig         `yaml:"api"`
	Defaults    DefaultsConfig    `yaml:"defaults"`
	Chat        ChatConfig        `yaml:"chat"`
	Video       VideoConfig       `yaml:"video"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	Images      ImagesConfig      `yaml:"images"`
}

const (
	DefaultChatTimeout    = 10 * time.Minute
	DefaultUploadTimeout  = 10 * time.Minute
	DefaultRequestTimeout = 30 * time.Second
	DefaultVideoTimeout   = 15 * time.Minute
)

// Load loads configuration from the specified file path.
// The embedded default configuration is loaded first, the user file is merged
// on top of it and environment variables override both.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfig, &cfg); err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			slog.Warn("config file not found, using defaults", "path", path)
		} else {
			expandedData := []byte(os.ExpandEnv(string(data)))
			if err := yaml.Unmarshal(expandedData, &cfg); err != nil {
				return nil, err
			}
			slog.Debug("loaded user config", "path", path)
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}

	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")

	return &cfg, nil
}

// LoadDefault loads the embedded default configuration.
func LoadDefault() (*Config, error) {
	return Load("")
}

// DefaultConfigBytes returns the raw embedded default configuration.
func DefaultConfigBytes() []byte {
	return defaultConfig
}

// Validate checks configuration for required fields and valid ranges.
// A missing base URL or API key is fatal at startup.
func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	} else if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL))
	}
	if c.API.APIKey == "" {
		errs = append(errs, errors.New("api.api_key is required"))
	}
	if c.API.ProxyURL != "" {
		if _, err := url.Parse(c.API.ProxyURL); err != nil {
			errs = append(errs, fmt.Errorf("api.proxy_url: %w", err))
		}
	}

	for name, value := range map[string]string{
		"api.chat_timeout":    c.API.ChatTimeout,
		"api.upload_timeout":  c.API.UploadTimeout,
		"api.request_timeout": c.API.RequestTimeout,
		"video.timeout":       c.Video.Timeout,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid duration format %q: %w", name, value, err))
		}
	}

	if c.Defaults.ChatModel == "" {
		errs = append(errs, errors.New("defaults.chat_model is required"))
	}
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		errs = append(errs, fmt.Errorf("chat.temperature must be between 0 and 2, got %f", c.Chat.Temperature))
	}
	if (c.Chat.Downgrade.From == "") != (c.Chat.Downgrade.To == "") {
		errs = append(errs, errors.New("chat.downgrade.from and chat.downgrade.to must be set together"))
	}

	if c.Video.CompressThresholdMB < 0 {
		errs = append(errs, fmt.Errorf("video.compress_threshold_mb must not be negative, got %d", c.Video.CompressThresholdMB))
	}
	if c.Video.Height <= 0 {
		errs = append(errs, fmt.Errorf("video.height must be positive, got %d", c.Video.Height))
	}
	if c.Video.FPS <= 0 {
		errs = append(errs, fmt.Errorf("video.fps must be positive, got %d", c.Video.FPS))
	}
	if c.Video.SWEncoder == "" {
		errs = append(errs, errors.New("video.sw_encoder is required"))
	}
	if c.Attachments.InlineThresholdMB < 0 {
		errs = append(errs, fmt.Errorf("attachments.inline_threshold_mb must not be negative, got %d", c.Attachments.InlineThresholdMB))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// CompressThresholdBytes is the size above which videos are re-encoded.
func (v *VideoConfig) CompressThresholdBytes() int64 {
	return v.CompressThresholdMB * megabyte
}

// GetTimeout returns the transcoder deadline.
// Falls back to DefaultVideoTimeout if not configured or invalid.
func (v *VideoConfig) GetTimeout() time.Duration {
	return parseDuration(v.Timeout, DefaultVideoTimeout)
}

// InlineThresholdBytes is the size above which a reference upload is attempted.
func (a *AttachmentsConfig) InlineThresholdBytes() int64 {
	return a.InlineThresholdMB * megabyte
}

// GetChatTimeout returns the timeout for streamed chat requests.
func (a *APIConfig) GetChatTimeout() time.Duration {
	return parseDuration(a.ChatTimeout, DefaultChatTimeout)
}

// GetUploadTimeout returns the timeout for a single upload attempt.
func (a *APIConfig) GetUploadTimeout() time.Duration {
	return parseDuration(a.UploadTimeout, DefaultUploadTimeout)
}

// GetRequestTimeout returns the timeout for small requests such as model listing.
func (a *APIConfig) GetRequestTimeout() time.Duration {
	return parseDuration(a.RequestTimeout, DefaultRequestTimeout)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
