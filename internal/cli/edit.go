package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/termalign/internal/term"
)

// edgeArgs are the positional arguments shared by add and remove.
type edgeArgs struct {
	alignment string
	source    string
	relation  term.Relation
	target    string
}

func parseEdgeArgs(args []string) (edgeArgs, error) {
	rel, err := term.ParseRelation(args[2])
	if err != nil {
		return edgeArgs{}, WrapExitError(ExitCommandError, "invalid relation", err)
	}
	return edgeArgs{alignment: args[0], source: args[1], relation: rel, target: args[3]}, nil
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	var inverted bool
	cmd := &cobra.Command{
		Use:   "add <alignment> <source-term> <relation> <target-term>",
		Short: "Add a correspondence edge",
		Long: `Add a correspondence from a source term to a target term.

Relations: exactMatch, closeMatch, relatedMatch, broadMatch.
A broadMatch edge also copies the source term's subtree into the alignment.

Example:
  termalign add <alignment> bird exactMatch aves`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ea, err := parseEdgeArgs(args)
			if err != nil {
				return err
			}
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				if err := a.session(ctx, ea.alignment, rootOpts.Owner); err != nil {
					return err
				}
				added, err := a.engine.AddAlignment(ctx, term.Ref{ID: ea.source}, term.Ref{ID: ea.target}, ea.relation, inverted)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to add alignment", err)
				}
				text := fmt.Sprintf("Added %s %s %s\n", ea.source, ea.relation, ea.target)
				if !added {
					text = "Edge already present.\n"
				}
				return a.out.Success(map[string]bool{"added": added}, text)
			})
		},
	}
	cmd.Flags().BoolVar(&inverted, "inverted", false, "store the edge target first")
	return cmd
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	var inverted bool
	cmd := &cobra.Command{
		Use:   "remove <alignment> <source-term> <relation> <target-term>",
		Short: "Remove a correspondence edge and cascade",
		Long: `Remove a correspondence edge. Terms that lose their last justification
are unmarked, down the subtree that was aligned through them.

Example:
  termalign remove <alignment> bird exactMatch aves`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ea, err := parseEdgeArgs(args)
			if err != nil {
				return err
			}
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				if err := a.session(ctx, ea.alignment, rootOpts.Owner); err != nil {
					return err
				}
				if err := a.engine.RemoveTerm(ctx, ea.source, ea.relation, ea.target, inverted); err != nil {
					return WrapExitError(ExitFailure, "failed to remove alignment", err)
				}
				aligned, err := a.engine.IsSourceAligned(ctx, ea.source)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read tracker", err)
				}
				text := fmt.Sprintf("Removed %s %s %s (%s still aligned: %t)\n", ea.source, ea.relation, ea.target, ea.source, aligned)
				return a.out.Success(map[string]bool{"aligned": aligned}, text)
			})
		},
	}
	cmd.Flags().BoolVar(&inverted, "inverted", false, "the edge is stored target first")
	return cmd
}
