// Package cmd defines the CLI commands for the harvester executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newswire/harvester/internal/app"
)

var cfgFile string

type appKeyType string

const appKey appKeyType = "app"

// newAppFn builds the application services. It is a variable so tests can
// substitute a fake.
var newAppFn = app.New

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Concurrent feed acquisition with staged deduplication.",
		Long: `harvester collects items from configured RSS/Atom sources with
per-domain rate limiting, classifies each candidate against history using
exact and semantic matching, and persists the novel ones.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newAppFn(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app.App); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newCollectCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newPruneCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// Execute runs the root command.
func Execute(ctx context.Context) {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
