package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/epicbuild/epic/pkg/driver"
)

func newGraphCommand() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the build graph as Graphviz DOT",
		Example: `  # Render the graph
  epic graph | dot -Tsvg > graph.svg

  # Write to a file
  epic graph --out graph.dot`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDriver(cmd, overrides(cmd), func(ctx context.Context, d *driver.Driver) error {
				if outFile == "" {
					return d.Graph(ctx, cmd.OutOrStdout())
				}
				f, err := os.Create(outFile)
				if err != nil {
					return err
				}
				if err := d.Graph(ctx, f); err != nil {
					_ = f.Close()
					return err
				}
				return f.Close()
			})
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")

	return cmd
}
