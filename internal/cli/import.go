package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/termalign/internal/taxonomy"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a taxonomy version from CUE or YAML",
		Long: `Import a taxonomy definition as a named graph "<name>@<version>".

The file is a .cue file with a top-level "taxonomy" struct, or a .yaml/.yml
file with name, version and concepts. Re-importing the same version adds
missing triples and leaves existing ones untouched.

Examples:
  termalign import ./taxonomies/animals_v1.cue
  termalign import --db ./align.db ./taxonomies/animals_v2.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, cmd, args[0])
		},
	}
}

func runImport(opts *RootOptions, cmd *cobra.Command, path string) error {
	tax, err := taxonomy.LoadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load taxonomy", err)
	}

	return withApp(cmd, opts, func(ctx context.Context, a *app) error {
		info, err := taxonomy.Import(ctx, a.store, a.cfg.Vocabulary, tax)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to import taxonomy", err)
		}
		a.out.VerboseLog("imported %d concepts from %s", len(tax.Concepts), path)
		return a.out.Success(info, fmt.Sprintf("Imported %s (%d concepts)\n", info.ID, len(tax.Concepts)))
	})
}
