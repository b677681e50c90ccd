package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/termalign/internal/store"
)

// NewAlignmentsCommand creates the alignments command group.
func NewAlignmentsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alignments",
		Short: "Create and list alignment graphs",
	}
	cmd.AddCommand(newAlignmentsCreateCommand(rootOpts))
	cmd.AddCommand(newGraphsListCommand(rootOpts, "list", store.KindAlignment, "List alignment graphs"))
	return cmd
}

type createOptions struct {
	Name   string
	Source string
	Target string
}

func newAlignmentsCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &createOptions{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an empty alignment between two taxonomy graphs",
		Long: `Register an empty alignment between two imported taxonomy graphs.

Example:
  termalign alignments create --name animals --source animals@1 --target species@1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				info, err := a.engine.CreateAlignment(ctx, opts.Name, opts.Source, opts.Target)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to create alignment", err)
				}
				return a.out.Success(info, fmt.Sprintf("Created alignment %s (%s -> %s)\n", info.ID, info.SourceGraph, info.TargetGraph))
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "alignment name (required)")
	cmd.Flags().StringVar(&opts.Source, "source", "", "source taxonomy graph id (required)")
	cmd.Flags().StringVar(&opts.Target, "target", "", "target taxonomy graph id (required)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func newGraphsListCommand(rootOpts *RootOptions, use string, kind store.GraphKind, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				graphs, err := a.store.ListGraphs(ctx, kind)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list graphs", err)
				}
				if graphs == nil {
					graphs = []store.GraphInfo{}
				}
				return a.out.Success(graphs, formatGraphs(graphs))
			})
		},
	}
}

func formatGraphs(graphs []store.GraphInfo) string {
	if len(graphs) == 0 {
		return "No graphs registered.\n"
	}
	var b strings.Builder
	for _, g := range graphs {
		fmt.Fprintf(&b, "%-24s %-10s %s v%d", g.ID, g.Kind, g.Name, g.Version)
		if g.Kind == store.KindAlignment {
			fmt.Fprintf(&b, " (%s -> %s)", g.SourceGraph, g.TargetGraph)
		}
		b.WriteString("\n")
	}
	return b.String()
}
