package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/runixer/mediachat/internal/app"
	"github.com/runixer/mediachat/internal/config"
	"github.com/runixer/mediachat/internal/video"
	"github.com/spf13/cobra"
)

const defaultConfigSubPath = "configs/config.yaml"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey int

const servicesKey contextKey = iota

// rootOptions holds persistent flag values shared by all commands.
type rootOptions struct {
	cfgFile     string
	verbose     bool
	metricsFile string

	// transcoder replaces ffmpeg when set.
	transcoder video.Transcoder
}

// session is what every command receives through the command context.
type session struct {
	logger   *slog.Logger
	services *app.Services
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mediachat",
		Short: "Chat with multimodal models about local images and videos",
		Long: `Mediachat sends prompts and local media files to an OpenAI-compatible model gateway.
Large videos are re-encoded before sending, big files are uploaded when the gateway
supports it and everything else is embedded inline. Replies are streamed to stdout.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.LoadEnv(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
			}

			cfgPath, err := findConfigPath(opts.cfgFile)
			if err != nil {
				return err
			}
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			var logger *slog.Logger
			if opts.verbose {
				logger = app.NewLogger(cmd.ErrOrStderr(), slog.LevelDebug, true)
			} else {
				logger = app.NewLogger(cmd.ErrOrStderr(), app.ParseLevel(cfg.Log.Level), false)
			}
			slog.SetDefault(logger)
			logger.Debug("Using config", "path", cfgPath, "source", configSource(cfgPath))

			services, err := app.SetupServices(logger, cfg, opts.transcoder)
			if err != nil {
				return fmt.Errorf("failed to setup services: %w", err)
			}

			cmd.SetContext(context.WithValue(cmd.Context(), servicesKey, &session{
				logger:   logger,
				services: services,
			}))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "Path to config file (default: configs/config.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose debug output to stderr")
	rootCmd.PersistentFlags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(
		newChatCmd(),
		newAnalyzeCmd(),
		newImageCmd(),
		newModelsCmd(),
	)
	return rootCmd
}

// writeMetrics dumps the default registry in text format when --metrics-file is set.
func (o *rootOptions) writeMetrics() error {
	if o.metricsFile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(o.metricsFile, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

// getSession retrieves the session prepared by the root command.
func getSession(cmd *cobra.Command) (*session, error) {
	if s, ok := cmd.Context().Value(servicesKey).(*session); ok {
		return s, nil
	}
	return nil, fmt.Errorf("services not initialized")
}

// findConfigPath resolves the config file path.
// Searches in order: provided path, CWD/configs/config.yaml, then defaults.
func findConfigPath(providedPath string) (string, error) {
	if providedPath != "" {
		if _, err := os.Stat(providedPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", providedPath)
		}
		return providedPath, nil
	}
	if _, err := os.Stat(defaultConfigSubPath); err == nil {
		return defaultConfigSubPath, nil
	}
	return "", nil
}

func configSource(path string) string {
	if path != "" {
		return "file"
	}
	return "defaults"
}

// Flag helpers that panic on programmer errors (flag not registered).

func mustGetString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag %q not registered: %v", name, err))
	}
	return v
}

func mustGetStringArray(cmd *cobra.Command, name string) []string {
	v, err := cmd.Flags().GetStringArray(name)
	if err != nil {
		panic(fmt.Sprintf("flag %q not registered: %v", name, err))
	}
	return v
}

func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	v, err := cmd.Flags().GetFloat64(name)
	if err != nil {
		panic(fmt.Sprintf("flag %q not registered: %v", name, err))
	}
	return v
}
