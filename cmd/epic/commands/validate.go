package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epicbuild/epic/pkg/driver"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the build graph and package manifest",
		Long: `Check the project without building it.

This command checks:
  - package.json against its schema
  - every artifact is produced by a single kind of action
  - compile steps have exactly one input
  - the graph has no dependency cycles

Source files that do not exist yet are listed as warnings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDriver(cmd, overrides(cmd), func(ctx context.Context, d *driver.Driver) error {
				report, err := d.Validate(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOutput {
					return printJSON(out, report)
				}
				fmt.Fprintf(out, "Graph is valid: %d edges, %d sources, %d intermediates, %d products, depth %d\n",
					report.Edges, len(report.Sources), len(report.Intermediates), len(report.Finals), len(report.Levels))
				for _, v := range report.MissingInputs {
					fmt.Fprintf(out, "  warning: source %s does not exist\n", v)
				}
				return nil
			})
		},
	}

	return cmd
}
