package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep <alignment>",
		Short: "Remove orphaned hierarchy edges",
		Long: `Run the orphan sweep on an alignment until no orphaned hierarchy edge
remains.

Example:
  termalign sweep <alignment>`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				if err := a.session(ctx, args[0], rootOpts.Owner); err != nil {
					return err
				}
				report, err := a.engine.Sweep(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "sweep failed", err)
				}
				text := fmt.Sprintf("Removed %d hierarchy edges in %d iterations.\n", report.Removed, report.Iterations)
				return a.out.Success(report, text)
			})
		},
	}
}
