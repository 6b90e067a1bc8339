// Package cli implements linkerctl, the operator tool for reconciliation
// runs against the shipment store.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dkozyrev/freight-linker/internal/bootstrap"
	"github.com/dkozyrev/freight-linker/internal/config"
	"github.com/dkozyrev/freight-linker/internal/observability/logging"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool

	// newApp allows tests to substitute the wired application.
	newApp func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*bootstrap.App, error)
}

// NewRootCommand creates the root command for linkerctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{newApp: bootstrap.NewCore}

	cmd := &cobra.Command{
		Use:   "linkerctl",
		Short: "Operator tooling for the shipment linking engine",
		Long: `linkerctl runs reconciliation passes over the shipment store.

verify   compares stored workflow states against states derived from
         linked documents, read-only.
backfill links unprocessed classified emails, retries pending candidates,
         and repairs drifted workflow states.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewBackfillCommand(opts))

	return cmd
}

func (opts *RootOptions) buildApp(ctx context.Context, mutators ...func(*config.Config)) (*bootstrap.App, error) {
	cfg := config.Load()
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	for _, mutate := range mutators {
		mutate(&cfg)
	}
	// Logs go to stderr; stdout is reserved for report tables.
	logger := logging.NewJSONLoggerTo(os.Stderr, "linkerctl", cfg.LogLevel)
	return opts.newApp(ctx, cfg, logger)
}
