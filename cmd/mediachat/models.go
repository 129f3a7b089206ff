package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

// modelGroups is the listing of models sorted into display categories.
type modelGroups struct {
	Chat  []string
	Image []string
	Other []string
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models offered by the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getSession(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			models, err := s.services.Gateway.ListModels(ctx)
			if err != nil {
				return fmt.Errorf("failed to list models: %w", err)
			}
			if len(models) == 0 {
				return fmt.Errorf("gateway returned no models")
			}

			ids := make([]string, 0, len(models))
			for _, m := range models {
				ids = append(ids, m.ID)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Found %d models:\n", len(ids))
			groups := categorizeModels(ids)
			printGroup(out, "Chat / Text Models", groups.Chat)
			printGroup(out, "Image / Vision Models", groups.Image)
			printGroup(out, "Other Models", groups.Other)
			return nil
		},
	}
}

// categorizeModels sorts ids into image, chat and other groups by name.
// Image markers win over chat family names.
func categorizeModels(ids []string) modelGroups {
	var g modelGroups
	for _, id := range ids {
		lower := strings.ToLower(id)
		switch {
		case strings.Contains(lower, "image") || strings.Contains(lower, "paint"):
			g.Image = append(g.Image, id)
		case strings.Contains(lower, "claude") || strings.Contains(lower, "gpt") || strings.Contains(lower, "gemini"):
			g.Chat = append(g.Chat, id)
		default:
			g.Other = append(g.Other, id)
		}
	}
	sort.Strings(g.Chat)
	sort.Strings(g.Image)
	sort.Strings(g.Other)
	return g
}

func printGroup(w io.Writer, title string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Fprintf(w, "\n--- %s ---\n", title)
	for _, id := range ids {
		fmt.Fprintf(w, "  %s\n", id)
	}
}
