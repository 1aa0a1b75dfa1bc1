package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPruneCmd() *cobra.Command {
	var retainDays int
	var cacheRetainDays int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Removes old items and stale embedding cache entries",

		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			removed, err := a.Store.PruneOlderThan(cmd.Context(), retainDays)
			if err != nil {
				return err
			}
			a.Log.Info("pruned stored items",
				zap.Int64("removed", removed),
				zap.Int("retain_days", retainDays),
			)

			cutoff := time.Now().Add(-time.Duration(cacheRetainDays) * 24 * time.Hour)
			evicted, err := a.Cache.PruneOlderThan(cutoff)
			if err != nil {
				return err
			}
			a.Log.Info("pruned embedding cache",
				zap.Int("evicted", evicted),
				zap.Int("retain_days", cacheRetainDays),
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&retainDays, "retain-days", 90, "keep items published within this many days")
	cmd.Flags().IntVar(&cacheRetainDays, "cache-retain-days", 30, "keep cache entries touched within this many days")
	return cmd
}
