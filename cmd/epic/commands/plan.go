package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epicbuild/epic/pkg/driver"
	"github.com/epicbuild/epic/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [target...]",
		Short: "Show what a build would do",
		Long: `Show the toolchain steps a build would run, in order, without running them.

Each step names the artifact, the action and why it is stale:
  - missing: the artifact does not exist
  - input_newer: an input was modified after the artifact
  - dependency_rebuilt: an input is itself rebuilt by an earlier step

With no targets every final artifact is planned.`,
		Example: `  # Plan a full build
  epic plan

  # Plan one executable
  epic plan bin/hello.exe`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDriver(cmd, overrides(cmd), func(ctx context.Context, d *driver.Driver) error {
				plan, err := d.Plan(ctx, args)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOutput {
					return printJSON(out, plan)
				}
				if plan.IsEmpty() {
					fmt.Fprintln(out, "Everything is up to date")
					return nil
				}
				for i, step := range plan.Steps {
					fmt.Fprintf(out, "%3d. %-7s %s (%s)\n", i+1, step.Action, step.Vertex, step.Reason)
				}
				counts := plan.CountByAction()
				fmt.Fprintf(out, "\n%d steps: %d compile, %d archive, %d link\n", len(plan.Steps),
					counts[engine.ActionCompile], counts[engine.ActionArchive], counts[engine.ActionLink])
				return nil
			})
		},
	}

	return cmd
}
