package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkozyrev/freight-linker/internal/infrastructure/report"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Export string
	Strict bool
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare stored workflow states against derived states",
		Long: `Derive the expected workflow state of every shipment from its linked
document set and compare it against the stored state. Nothing is mutated.

Example:
  linkerctl verify
  linkerctl verify --strict --export drift.xlsx`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Export, "export", "", "write the report to an Excel workbook at this path")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "exit non-zero when any drift is found")

	return cmd
}

func runVerify(cmd *cobra.Command, opts *VerifyOptions) error {
	ctx := cmd.Context()

	app, err := opts.buildApp(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize storage", err)
	}
	defer app.Close()

	rep, err := app.ReconcileUC.Verify(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "verify run failed", err)
	}

	printVerifyReport(cmd.OutOrStdout(), rep)

	if opts.Export != "" {
		if err := report.WriteVerifyReport(opts.Export, rep); err != nil {
			return WrapExitError(ExitCommandError, "failed to export report", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nreport written to %s\n", opts.Export)
	}

	if opts.Strict && rep.Drifted > 0 {
		return NewExitError(ExitDrift, fmt.Sprintf("%d shipment(s) drifted", rep.Drifted))
	}
	return nil
}
