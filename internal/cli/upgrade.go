package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type upgradeOptions struct {
	Source string
	Target string
}

// NewUpgradeCommand creates the upgrade command.
func NewUpgradeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &upgradeOptions{}
	cmd := &cobra.Command{
		Use:   "upgrade <alignment>",
		Short: "Duplicate an alignment against newer taxonomy versions",
		Long: `Copy an alignment into a new alignment graph bound to newer taxonomy
versions. Edges whose terms were removed are pruned; terms whose ancestry
changed are reported as stale. The old alignment is left untouched.

Without --source or --target the latest imported version of each side is used.

Example:
  termalign upgrade <alignment> --source animals@2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				if err := a.session(ctx, args[0], rootOpts.Owner); err != nil {
					return err
				}
				report, err := a.engine.UpgradeAlignment(ctx, args[0], opts.Source, opts.Target)
				if err != nil {
					return WrapExitError(ExitFailure, "upgrade failed", err)
				}

				var b strings.Builder
				fmt.Fprintf(&b, "Upgraded %s -> %s (%s -> %s)\n", args[0], report.Alignment.ID, report.Alignment.SourceGraph, report.Alignment.TargetGraph)
				fmt.Fprintf(&b, "Copied %d triples, pruned %d edges, swept %d hierarchy edges.\n", report.Copied, len(report.Pruned), report.Sweep.Removed)
				for _, e := range report.Pruned {
					fmt.Fprintf(&b, "  pruned %s\n", e.Key())
				}
				for _, s := range report.Stale {
					fmt.Fprintf(&b, "  stale  %s %s: %s\n", s.Side, s.Term, s.Result.Reason)
				}
				return a.out.Success(report, b.String())
			})
		},
	}
	cmd.Flags().StringVar(&opts.Source, "source", "", "new source taxonomy graph id")
	cmd.Flags().StringVar(&opts.Target, "target", "", "new target taxonomy graph id")
	return cmd
}
