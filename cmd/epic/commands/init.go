package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epicbuild/epic/pkg/driver"
)

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the build graph of a project",
		Long: `Create graph.csv in the project root, populated from the sources found there.

Every .c and .cpp file is compiled into obj/. Objects whose names do not start
with main or test are archived into lib/<project>.lib. Every main* and test*
object is linked into an executable in bin/ together with the project library.

An empty package.json and a .gitignore are written when absent. init refuses to
run when graph.csv already exists so a hand-edited graph is never overwritten.`,
		Example: `  # Initialize the current directory
  epic init

  # Initialize another project
  epic init --root ./zlib`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDriver(cmd, overrides(cmd), func(ctx context.Context, d *driver.Driver) error {
				report, err := d.Init(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOutput {
					return printJSON(out, report)
				}
				fmt.Fprintf(out, "Initialized %s with %d edges\n", report.Table, report.Edges)
				for _, f := range report.Created {
					fmt.Fprintf(out, "  created %s\n", f)
				}
				return nil
			})
		},
	}

	return cmd
}
