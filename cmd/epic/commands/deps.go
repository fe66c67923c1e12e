package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epicbuild/epic/pkg/driver"
)

func newDepsCommand() *cobra.Command {
	var localRepo string

	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Resolve package dependencies",
		Long: `Resolve the dependencies declared in package.json against the local repository.

Each identifier must have a folder <repo>/<identifier>/ holding at least one
version folder; the first version by name is used. Its static library is
expected at <version>/lib/<arch>-<variant>/<name>.lib. Every missing
dependency or library is reported at once.`,
		Example: `  # Resolve against the configured repository
  epic deps

  # Resolve release libraries from another repository
  epic deps --variant release --repo /srv/epic-repo`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o := overrides(cmd)
			o.LocalRepo = localRepo
			return withDriver(cmd, o, func(ctx context.Context, d *driver.Driver) error {
				deps, err := d.Deps(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOutput {
					return printJSON(out, deps)
				}
				if len(deps) == 0 {
					fmt.Fprintln(out, "No dependencies")
					return nil
				}
				for _, dep := range deps {
					fmt.Fprintf(out, "%s %s\n  include %s\n  library %s\n", dep.ID, dep.Constraint, dep.Path, dep.Library)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&localRepo, "repo", "", "local package repository (overrides EPIC_LOCAL_REPO)")

	return cmd
}
