package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/termalign/internal/engine"
)

type checkOptions struct {
	Side string
	Term string
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &checkOptions{}
	cmd := &cobra.Command{
		Use:   "check <alignment>",
		Short: "Check aligned terms against the latest taxonomy versions",
		Long: `Compare aligned terms with the latest imported version of their
taxonomy. Exits 1 when any term is out of sync.

Examples:
  termalign check <alignment>
  termalign check <alignment> --side source --term penguin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, opts, cmd, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.Side, "side", "source", "taxonomy side of --term (source|target)")
	cmd.Flags().StringVar(&opts.Term, "term", "", "check a single term")
	return cmd
}

func runCheck(rootOpts *RootOptions, opts *checkOptions, cmd *cobra.Command, alignmentID string) error {
	side, err := engine.ParseSide(opts.Side)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid side", err)
	}

	return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
		if err := a.session(ctx, alignmentID, rootOpts.Owner); err != nil {
			return err
		}

		var statuses []engine.TermStatus
		if opts.Term != "" {
			res, err := a.engine.CheckSynchronized(ctx, side, opts.Term)
			if err != nil {
				return WrapExitError(ExitFailure, "check failed", err)
			}
			statuses = []engine.TermStatus{{Side: side, Term: opts.Term, Result: res}}
		} else {
			statuses, err = a.engine.CheckAll(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "check failed", err)
			}
		}
		if statuses == nil {
			statuses = []engine.TermStatus{}
		}

		if err := a.out.Success(statuses, formatStatuses(statuses)); err != nil {
			return err
		}
		if n := outOfSync(statuses); n > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("%d term(s) out of sync", n))
		}
		return nil
	})
}

func outOfSync(statuses []engine.TermStatus) int {
	n := 0
	for _, s := range statuses {
		if !s.Result.InSync {
			n++
		}
	}
	return n
}

func formatStatuses(statuses []engine.TermStatus) string {
	if len(statuses) == 0 {
		return "No aligned terms.\n"
	}
	var b strings.Builder
	for _, s := range statuses {
		if s.Result.InSync {
			fmt.Fprintf(&b, "ok     %-6s %s\n", s.Side, s.Term)
			continue
		}
		fmt.Fprintf(&b, "stale  %-6s %s: %s", s.Side, s.Term, s.Result.Reason)
		if s.Result.At != "" && s.Result.At != s.Term {
			fmt.Fprintf(&b, " at %s", s.Result.At)
		}
		b.WriteString("\n")
	}
	return b.String()
}
