package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epicbuild/epic/pkg/driver"
)

func newCleanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove build products",
		Long: `Remove every intermediate and final artifact listed in the build graph.

Directories that held artifacts are removed afterwards when they are empty,
deepest first. Directories that still contain other files are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDriver(cmd, overrides(cmd), func(ctx context.Context, d *driver.Driver) error {
				report, err := d.Clean(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOutput {
					return printJSON(out, report)
				}
				for _, f := range report.Files {
					fmt.Fprintf(out, "removed %s\n", f)
				}
				for _, dir := range report.Directories {
					fmt.Fprintf(out, "removed %s/\n", dir)
				}
				fmt.Fprintf(out, "Cleaned %d files, %d directories\n", len(report.Files), len(report.Directories))
				return nil
			})
		},
	}

	return cmd
}
