package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/runixer/mediachat/internal/imagegen"
	"github.com/spf13/cobra"
)

const imagePrefix = "mediachat"

func newImageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image <prompt>",
		Short: "Generate an image and save it locally",
		Long: `Ask the image model for a picture. Embedded images are written to the
output directory, image links in the reply are printed as-is.

Sizes accept pixel dimensions or the aliases 16:9, 9:16, 4:3 and 1:1.

Example:
  mediachat image "A lighthouse at dusk" --size 16:9`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getSession(cmd)
			if err != nil {
				return err
			}

			size := imagegen.ResolveSize(mustGetString(cmd, "size"))
			outDir := mustGetString(cmd, "out")
			if outDir == "" {
				outDir = s.services.Config.Images.OutputDir
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			content, err := s.services.Gateway.GenerateImage(ctx, strings.Join(args, " "), size)
			if err != nil {
				return fmt.Errorf("image generation failed: %w", err)
			}

			images := imagegen.Extract(content)
			if len(images) == 0 {
				s.logger.Debug("Reply without images", "content", content)
				return errors.New("no image found in the reply")
			}

			saved, err := imagegen.Save(outDir, imagePrefix, images, time.Now())
			for _, item := range saved {
				if item.Path != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "saved: %s\n", item.Path)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "url: %s\n", item.Image.URL)
				}
			}
			return err
		},
	}

	cmd.Flags().String("size", imagegen.DefaultSize, "Image size or aspect ratio alias")
	cmd.Flags().String("out", "", "Output directory (default: images.output_dir)")
	return cmd
}
