package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epicbuild/epic/pkg/driver"
)

func newHeaderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "header",
		Short: "Generate the aggregate package header",
		Long: `Write <name>.h into the project root, including every other header there.

The name comes from package.json, or the folder name when none is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDriver(cmd, overrides(cmd), func(ctx context.Context, d *driver.Driver) error {
				path, err := d.Header(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOutput {
					return printJSON(out, map[string]string{"header": path})
				}
				fmt.Fprintf(out, "Generated %s\n", path)
				return nil
			})
		},
	}

	return cmd
}
