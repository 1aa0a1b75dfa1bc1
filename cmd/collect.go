package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCollectCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Runs collection cycles over the configured sources",
		Long: `Fetches every configured source, classifies the candidates against
history and persists the novel items. Runs once by default; with --interval
it keeps cycling until interrupted.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			runOnce := func(ctx context.Context) error {
				novel, stats, err := a.Pipeline.CollectAndClassify(ctx, a.Sources)
				if err != nil {
					return err
				}
				a.Log.Info("collection cycle",
					zap.Int("total", stats.Total),
					zap.Int("new", len(novel)),
					zap.Int("duplicates", stats.Duplicates),
					zap.Strings("failed_sources", stats.FailedSources),
				)
				return nil
			}

			ctx := cmd.Context()
			if err := runOnce(ctx); err != nil {
				return err
			}
			if interval <= 0 {
				return nil
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := runOnce(ctx); err != nil {
						if errors.Is(err, context.Canceled) {
							return nil
						}
						a.Log.Error("collection cycle failed", zap.Error(err))
					}
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "repeat interval (0 runs once)")
	return cmd
}
