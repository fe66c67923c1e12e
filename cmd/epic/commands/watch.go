package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/epicbuild/epic/pkg/driver"
	"github.com/epicbuild/epic/pkg/engine"
)

func newWatchCommand() *cobra.Command {
	var (
		debounce    time.Duration
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild whenever sources change",
		Long: `Build the project, then rebuild it each time a source, header, graph.csv or
package.json in the project root changes. Changes arriving in quick
succession trigger a single build. A failed build is reported and watching
continues. Stop with Ctrl-C.`,
		Example: `  # Watch with Prometheus metrics on :9090/metrics
  epic watch --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o := overrides(cmd)
			o.MetricsAddress = metricsAddr
			return withDriver(cmd, o, func(ctx context.Context, d *driver.Driver) error {
				out := cmd.OutOrStdout()
				return d.Watch(ctx, debounce, func(report *driver.Report, err error) {
					if jsonOutput {
						_ = printJSON(out, map[string]interface{}{"report": report, "error": errString(err)})
						return
					}
					if err != nil {
						if output := engine.ProcessOutput(err); output != "" {
							fmt.Fprintln(out, output)
						}
						fmt.Fprintf(out, "Build failed: %v\n", err)
						return
					}
					fmt.Fprintf(out, "Built %d artifacts, %d up to date\n",
						report.Summary.Executed, report.Summary.Skipped)
				})
			})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", driver.DefaultDebounce, "quiet period before rebuilding")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
