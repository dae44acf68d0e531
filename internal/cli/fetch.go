package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"bird-quiz-service/internal/domain"
	"bird-quiz-service/internal/imagecache"
	"bird-quiz-service/internal/imagefetch"
)

// NewFetchCmd downloads a single hint image the way quiz sessions do and saves it locally.
func NewFetchCmd(configPath *string) *cobra.Command {
	var (
		out     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Download and downsample one hint image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			opts := quizOptions(cfg, logger)
			if opts.Reachable != nil && !opts.Reachable() {
				return imagefetch.ErrNetworkUnavailable
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			target := opts.Target
			if target == (imagefetch.Target{}) {
				target = imagefetch.DefaultTarget
			}
			fetcher := imagefetch.NewFetcher(imagecache.New(1, logger), opts.ConnectTimeout, imagefetch.WithLogger(logger))
			url := domain.Hint{ImageURL: args[0]}.FetchURL()

			last := -1
			img, err := fetcher.Fetch(ctx, url, target, func(p imagefetch.Progress) {
				if pct := p.Percent(); pct != last {
					last = pct
					fmt.Fprintf(cmd.ErrOrStderr(), "\r%3d%% (%d bytes)", pct, p.Total)
				}
			})
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			if err := imaging.Save(img, out, imaging.JPEGQuality(85)); err != nil {
				return fmt.Errorf("save %s: %w", out, err)
			}
			b := img.Bounds()
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%dx%d)\n", out, b.Dx(), b.Dy())
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "hint.jpg", "output file; the extension selects the format")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall download deadline (none when zero)")
	return cmd
}
