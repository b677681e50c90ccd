package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/termalign/internal/term"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "show <alignment>",
		Short: "Print an alignment's edges and aligned terms",
		Long: `Print the edges of an alignment, ordered by source label, followed by
the source terms currently aligned.

Example:
  termalign show <alignment> --lang de`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := language.Parse(lang)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --lang", err)
			}
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				if err := a.session(ctx, args[0], rootOpts.Owner); err != nil {
					return err
				}
				snap, err := a.engine.Snapshot(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read session", err)
				}
				sortEdges(snap.Edges, tag)
				if snap.Edges == nil {
					snap.Edges = []term.Edge{}
				}

				var b strings.Builder
				fmt.Fprintf(&b, "Alignment %s (%s -> %s), %d edges\n", snap.Alignment.ID, snap.Alignment.SourceGraph, snap.Alignment.TargetGraph, len(snap.Edges))
				for _, e := range snap.Edges {
					arrow := "->"
					if e.Inverted {
						arrow = "<-"
					}
					fmt.Fprintf(&b, "  %s %s[%s] %s\n", e.Source, arrow, e.Relation, e.Target)
				}
				fmt.Fprintf(&b, "Aligned: %s\n", strings.Join(snap.Aligned, ", "))
				return a.out.Success(snap, b.String())
			})
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "und", "BCP 47 language used to order labels")
	return cmd
}

// sortEdges orders edges by collated source label, then target label, then
// relation. Ties fall back to ids.
func sortEdges(edges []term.Edge, tag language.Tag) {
	c := collate.New(tag, collate.IgnoreCase)
	sort.SliceStable(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if r := c.CompareString(a.Source.String(), b.Source.String()); r != 0 {
			return r < 0
		}
		if r := c.CompareString(a.Target.String(), b.Target.String()); r != 0 {
			return r < 0
		}
		if a.Relation != b.Relation {
			return a.Relation < b.Relation
		}
		return a.Key().String() < b.Key().String()
	})
}
