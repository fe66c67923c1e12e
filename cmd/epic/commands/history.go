package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/epicbuild/epic/pkg/driver"
)

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded builds",
		Long: `List recent runs recorded in .epic/history.db, newest first.

With a run ID, show every artifact that run examined: whether it was built,
up to date or failed, why it was stale and how long the tool took.`,
		Example: `  # Last 20 runs
  epic history

  # Steps of one run
  epic history 3f2a9c4e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDriver(cmd, overrides(cmd), func(ctx context.Context, d *driver.Driver) error {
				out := cmd.OutOrStdout()

				if len(args) == 1 {
					run, steps, err := d.RunDetail(ctx, args[0])
					if err != nil {
						return err
					}
					if jsonOutput {
						return printJSON(out, map[string]interface{}{"run": run, "steps": steps})
					}
					fmt.Fprintf(out, "%s %s %s (%s, %s)\n", run.ID, run.Command, run.Status,
						run.BuildConfig, run.Duration().Round(time.Millisecond))
					if run.Error != nil {
						fmt.Fprintf(out, "error: %s\n", *run.Error)
					}
					tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "STATUS\tACTION\tVERTEX\tREASON\tDURATION")
					for _, s := range steps {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Status, s.Action, s.Vertex, s.Reason, s.Duration)
					}
					return tw.Flush()
				}

				runs, err := d.History(ctx, limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(out, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN\tCOMMAND\tSTATUS\tCONFIG\tSTARTED\tBUILT\tUP TO DATE\tFAILED")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
						r.ID, r.Command, r.Status, r.BuildConfig,
						r.StartedAt.Local().Format(time.DateTime), r.Executed, r.Skipped, r.Failed)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")

	return cmd
}
