package app

import (
	"fmt"
	"log/slog"

	"github.com/runixer/mediachat/internal/config"
	"github.com/runixer/mediachat/internal/files"
	"github.com/runixer/mediachat/internal/gateway"
	"github.com/runixer/mediachat/internal/transport"
	"github.com/runixer/mediachat/internal/upload"
	"github.com/runixer/mediachat/internal/video"
)

// Services holds the constructed pipeline components for one process.
type Services struct {
	Config    *config.Config
	Gateway   gateway.Client
	Uploader  *upload.Resolver
	Optimizer *video.Optimizer
	Planner   *files.Planner
}

// SetupServices builds the HTTP handles and pipeline components from cfg.
// A nil transcoder selects ffmpeg from cfg.Video.FFmpegPath.
//
// cfg must already be validated.
func SetupServices(logger *slog.Logger, cfg *config.Config, transcoder video.Transcoder) (*Services, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	streamHTTP, err := transport.NewHTTPClient(logger, transport.Options{
		Timeout:  cfg.API.GetChatTimeout(),
		ProxyURL: cfg.API.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat HTTP client: %w", err)
	}
	uploadHTTP, err := transport.NewHTTPClient(nil, transport.Options{
		Timeout:  cfg.API.GetUploadTimeout(),
		ProxyURL: cfg.API.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create upload HTTP client: %w", err)
	}
	shortHTTP, err := transport.NewHTTPClient(nil, transport.Options{
		Timeout:  cfg.API.GetRequestTimeout(),
		ProxyURL: cfg.API.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	client, err := gateway.NewClient(logger, gateway.Options{
		BaseURL:      cfg.API.BaseURL,
		APIKey:       cfg.API.APIKey,
		UserAgent:    cfg.API.UserAgent,
		StreamHTTP:   streamHTTP,
		HTTP:         shortHTTP,
		DefaultModel: cfg.Defaults.ChatModel,
		ImageModel:   cfg.Defaults.ImageModel,
		Downgrade: gateway.Downgrade{
			From: cfg.Chat.Downgrade.From,
			To:   cfg.Chat.Downgrade.To,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway client: %w", err)
	}

	uploader, err := upload.NewResolver(logger, upload.Options{
		BaseURL:   cfg.API.BaseURL,
		APIKey:    cfg.API.APIKey,
		UserAgent: cfg.API.UserAgent,
		HTTP:      uploadHTTP,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create upload resolver: %w", err)
	}

	if transcoder == nil {
		exec := video.NewExecTranscoder(cfg.Video.FFmpegPath)
		if !exec.Available() {
			logger.Warn("ffmpeg not found, large videos will be sent unoptimized", "binary", exec.Binary)
		}
		transcoder = exec
	}
	optimizer := video.NewOptimizer(transcoder, video.Options{
		CacheDir:  cfg.Video.CacheDir,
		Height:    cfg.Video.Height,
		FPS:       cfg.Video.FPS,
		HWEncoder: cfg.Video.HWEncoder,
		SWEncoder: cfg.Video.SWEncoder,
		Timeout:   cfg.Video.GetTimeout(),
	}, logger)

	planner := files.NewPlanner(optimizer, uploader, files.PlannerOptions{
		CompressThreshold: cfg.Video.CompressThresholdBytes(),
		InlineThreshold:   cfg.Attachments.InlineThresholdBytes(),
		Concurrency:       cfg.Attachments.Concurrency,
	}, logger)

	logger.Debug("Services initialized",
		"base_url", cfg.API.BaseURL,
		"chat_model", cfg.Defaults.ChatModel,
		"cache_dir", cfg.Video.CacheDir,
	)

	return &Services{
		Config:    cfg,
		Gateway:   client,
		Uploader:  uploader,
		Optimizer: optimizer,
		Planner:   planner,
	}, nil
}
