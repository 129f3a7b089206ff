package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/runixer/mediachat/internal/files"
	"github.com/runixer/mediachat/internal/gateway"
	"github.com/runixer/mediachat/internal/sse"
	"github.com/spf13/cobra"
)

// reply is the assembled answer of one streamed chat request.
type reply struct {
	Model      string `json:"model"`
	Downgraded bool   `json:"downgraded"`
	Text       string `json:"response"`
	Skipped    int    `json:"skipped_lines,omitempty"`
}

// attachmentReport is the JSON view of a files.Outcome.
type attachmentReport struct {
	Path      string `json:"path"`
	Kind      string `json:"kind,omitempty"`
	Transport string `json:"transport"`
	SentPath  string `json:"sent_path,omitempty"`
	Optimized bool   `json:"optimized,omitempty"`
	Error     string `json:"error,omitempty"`
}

type chatResult struct {
	reply
	Attachments []attachmentReport `json:"attachments"`
}

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Send a prompt with optional media attachments",
		Long: `Send a prompt to the chat model and stream the reply to stdout.
Attachments are prepared concurrently. Files that cannot be read are skipped
with a warning, the request is still sent.

Example:
  mediachat chat "What happens in this clip?" -f clip.mp4
  mediachat chat "Compare these" -f a.png -f b.png --model gemini-3-pro --output json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getSession(cmd)
			if err != nil {
				return err
			}

			paths := mustGetStringArray(cmd, "file")
			model := mustGetString(cmd, "model")
			system := mustGetString(cmd, "system")
			outputFormat := mustGetString(cmd, "output")
			temperature := s.services.Config.Chat.Temperature
			if cmd.Flags().Changed("temperature") {
				temperature = mustGetFloat64(cmd, "temperature")
			}
			if outputFormat != "text" && outputFormat != "json" {
				return fmt.Errorf("unknown output format %q (want text or json)", outputFormat)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			messages := buildMessages(system, strings.Join(args, " "))
			messages, outcomes := s.services.Planner.Plan(ctx, paths, messages)
			if err := files.Summary(outcomes); err != nil && outputFormat == "text" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: some attachments were not sent as-is:\n%v\n", err)
			}

			var live io.Writer
			if outputFormat == "text" {
				live = cmd.OutOrStdout()
			}
			r, err := streamReply(ctx, s.services.Gateway, s.logger, live, messages, model, temperature)
			if outputFormat == "text" {
				if r.Text != "" && !strings.HasSuffix(r.Text, "\n") {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				return err
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(chatResult{reply: r, Attachments: reportOutcomes(outcomes)})
		},
	}

	cmd.Flags().StringArrayP("file", "f", nil, "Attach a local image or video (repeatable)")
	cmd.Flags().String("model", "", "Model to use (default: defaults.chat_model)")
	cmd.Flags().Float64("temperature", 0, "Sampling temperature (default: chat.temperature)")
	cmd.Flags().String("system", "", "Optional system prompt")
	cmd.Flags().String("output", "text", "Output format: text or json")
	return cmd
}

func buildMessages(system, prompt string) []gateway.Message {
	var messages []gateway.Message
	if system != "" {
		messages = append(messages, gateway.Message{Role: gateway.RoleSystem, Text: system})
	}
	return append(messages, gateway.UserMessage(prompt))
}

// streamReply dispatches messages and decodes the reply. Increments are
// copied to live as they arrive when live is not nil.
func streamReply(ctx context.Context, client gateway.Client, logger *slog.Logger, live io.Writer, messages []gateway.Message, model string, temperature float64) (reply, error) {
	stream, err := client.ChatStream(ctx, messages, model, temperature)
	if err != nil {
		return reply{}, err
	}
	defer stream.Close()

	r := reply{Model: stream.Model, Downgraded: stream.Downgraded}
	if !stream.OK() {
		return r, stream.Err()
	}

	dec := sse.NewDecoder(ctx, stream.Body, logger)
	defer dec.Close()

	var sb strings.Builder
	for dec.Next() {
		sb.WriteString(dec.Text())
		if live != nil {
			if _, err := io.WriteString(live, dec.Text()); err != nil {
				return r, fmt.Errorf("failed to write reply: %w", err)
			}
		}
	}
	r.Text = sb.String()
	r.Skipped = dec.Skipped()
	if err := dec.Err(); err != nil {
		return r, fmt.Errorf("stream interrupted: %w", err)
	}
	return r, nil
}

func reportOutcomes(outcomes []files.Outcome) []attachmentReport {
	reports := make([]attachmentReport, 0, len(outcomes))
	for _, o := range outcomes {
		report := attachmentReport{
			Path:      o.Path,
			Kind:      string(o.Kind),
			Transport: string(o.Transport),
			SentPath:  o.SentPath,
			Optimized: o.Optimized,
		}
		if err := o.Err(); err != nil {
			report.Error = err.Error()
		}
		reports = append(reports, report)
	}
	return reports
}
