// Command termalign aligns terms between two taxonomies and keeps the
// alignment consistent as the taxonomies evolve.
package main

import (
	"os"

	"github.com/roach88/termalign/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		out := &cli.OutputFormatter{Format: "text", Writer: os.Stdout, ErrWriter: os.Stderr}
		if f := cmd.Flag("format"); f != nil && f.Value.String() == "json" {
			out.Format = "json"
		}
		_ = out.ReportError(err)
		os.Exit(cli.GetExitCode(err))
	}
}
