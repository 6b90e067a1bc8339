package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkozyrev/freight-linker/internal/config"
	"github.com/dkozyrev/freight-linker/internal/infrastructure/report"
)

// BackfillOptions holds flags for the backfill command.
type BackfillOptions struct {
	*RootOptions
	BatchSize int
	Rate      int
	Export    string
}

// NewBackfillCommand creates the backfill command.
func NewBackfillCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackfillOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Link unprocessed emails and repair drifted workflow states",
		Long: `Scan classified emails that have no document link yet, resolve each one,
retry pending candidates, and re-derive the workflow state of every touched
shipment. Progress is checkpointed per batch; an interrupted run resumes
where it stopped. Re-running over the same corpus changes nothing.

Example:
  linkerctl backfill
  linkerctl backfill --batch-size 500 --rate 100 --export backfill.xlsx`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBackfill(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "emails per batch (default from BACKFILL_BATCH_SIZE)")
	cmd.Flags().IntVar(&opts.Rate, "rate", 0, "max emails per second (default from BACKFILL_RATE_PER_SEC)")
	cmd.Flags().StringVar(&opts.Export, "export", "", "write the report to an Excel workbook at this path")

	return cmd
}

func runBackfill(cmd *cobra.Command, opts *BackfillOptions) error {
	ctx := cmd.Context()

	app, err := opts.buildApp(ctx, func(cfg *config.Config) {
		if opts.BatchSize > 0 {
			cfg.BackfillBatchSize = opts.BatchSize
		}
		if opts.Rate > 0 {
			cfg.BackfillRatePerSec = opts.Rate
		}
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize storage", err)
	}
	defer app.Close()

	rep, err := app.ReconcileUC.Backfill(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "backfill run failed", err)
	}

	printBackfillReport(cmd.OutOrStdout(), rep)

	if opts.Export != "" {
		if err := report.WriteBackfillReport(opts.Export, rep); err != nil {
			return WrapExitError(ExitCommandError, "failed to export report", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nreport written to %s\n", opts.Export)
	}
	return nil
}
