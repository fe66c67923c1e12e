package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/epicbuild/epic/pkg/driver"
)

func newBuildCommand() *cobra.Command {
	var direct bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Bring every build product up to date",
		Long: `Build every final artifact of the project.

Artifacts are rebuilt when they are missing or when any input was modified
after them. Inputs are brought up to date first, depth first. Package
dependencies are resolved from the local repository before anything runs.

Outputs are written to a temporary file and moved into place on success, so a
failed tool never leaves a fresh-looking artifact behind. --direct disables
this for tools that insist on choosing their own output names.`,
		Example: `  # Debug build with the first toolchain found
  epic build

  # Release build for 32-bit with GCC
  epic build --toolchain gnu --arch x86 --variant release

  # Give up on any single tool run after two minutes
  epic build --timeout 2m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o := overrides(cmd)
			if cmd.Flags().Changed("direct") {
				o.DirectOutputs = &direct
			}
			return withDriver(cmd, o, func(ctx context.Context, d *driver.Driver) error {
				report, err := d.Build(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOutput {
					return printJSON(out, report)
				}
				fmt.Fprintf(out, "Built %d artifacts, %d up to date (%s, %s)\n",
					report.Summary.Executed, report.Summary.Skipped,
					d.Config().BuildConfigString(), report.Duration.Round(time.Millisecond))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&direct, "direct", false, "write outputs in place instead of via a temporary file")

	return cmd
}
