package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/runixer/mediachat/internal/files"
	"github.com/spf13/cobra"
)

const defaultAnalyzePrompt = `Break the video down into shots. For every shot give its start time, its duration in seconds and a description of its content, including framing and action.
Answer strictly with a JSON array in the following format, without Markdown code fences or any other text:
[
  {"start": "HH:MM:SS", "duration": 5, "text": "shot description"},
  ...
]
`

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <video> [prompt]",
		Short: "Break a video into shots and print the model's JSON answer",
		Long: `Send a single video to the analysis model and print the collected reply.
Without a prompt the model is asked for a JSON shot list. A surrounding
Markdown code fence is removed from the answer.

Example:
  mediachat analyze clip.mp4
  mediachat analyze clip.mp4 "List every person who appears"`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getSession(cmd)
			if err != nil {
				return err
			}

			path := strings.Trim(args[0], `"'`)
			prompt := defaultAnalyzePrompt
			if len(args) > 1 && strings.TrimSpace(args[1]) != "" {
				prompt = args[1]
			}
			model := mustGetString(cmd, "model")
			if model == "" {
				model = s.services.Config.Defaults.AnalyzeModel
			}

			// A missing video is fatal here, unlike attachments of chat.
			if _, err := files.NewAttachment(path); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			fmt.Fprintf(cmd.ErrOrStderr(), "Analyzing %s with %s\n", path, modelOrDefault(model))

			messages, outcomes := s.services.Planner.Plan(ctx, []string{path}, buildMessages("", prompt))
			if err := files.Summary(outcomes); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
			}
			if len(outcomes) == 1 && !outcomes[0].Included() {
				return errors.Join(errors.New("video could not be attached"), outcomes[0].Err())
			}

			r, err := streamReply(ctx, s.services.Gateway, s.logger, nil, messages, model, s.services.Config.Chat.Temperature)
			if err != nil {
				return err
			}
			if r.Downgraded {
				fmt.Fprintf(cmd.ErrOrStderr(), "Note: answered by %s\n", r.Model)
			}

			fmt.Fprintln(cmd.OutOrStdout(), stripCodeFence(r.Text))
			return nil
		},
	}

	cmd.Flags().String("model", "", "Model to use (default: defaults.analyze_model)")
	return cmd
}

// stripCodeFence removes a leading ```lang line and a trailing ``` line.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = ""
		}
	}
	if strings.HasSuffix(s, "```") {
		if i := strings.LastIndexByte(s, '\n'); i >= 0 {
			s = s[:i]
		} else {
			s = strings.TrimSuffix(s, "```")
		}
	}
	return strings.TrimSpace(s)
}

func modelOrDefault(model string) string {
	if model == "" {
		return "the default model"
	}
	return model
}
