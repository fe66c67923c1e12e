package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/epicbuild/epic/pkg/config"
	"github.com/epicbuild/epic/pkg/driver"
)

var (
	// Global flags
	rootDir    string
	toolchain  string
	arch       string
	variant    string
	timeout    time.Duration
	noHistory  bool
	logLevel   string
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "epic",
		Short: "epic - incremental build engine for native packages",
		Long: `epic builds C and C++ packages incrementally.

A project is a folder of sources with a build graph table (graph.csv) that
lists every compile, archive and link step. epic rebuilds only the artifacts
whose inputs changed, in dependency order, and resolves package dependencies
from a local repository.

Configuration is read from epic.yaml and .env in the project root, then from
EPIC_* environment variables, then from flags.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&rootDir, "root", "C", ".", "project root directory")
	flags.StringVar(&toolchain, "toolchain", "", "toolchain: auto, llvm, gnu or msvc")
	flags.StringVar(&arch, "arch", "", "target architecture: x86 or x64")
	flags.StringVar(&variant, "variant", "", "build variant: debug or release")
	flags.DurationVar(&timeout, "timeout", 0, "limit for a single toolchain invocation (0 = none)")
	flags.BoolVar(&noHistory, "no-history", false, "do not record build history")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newBuildCommand())
	rootCmd.AddCommand(newCleanCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newDepsCommand())
	rootCmd.AddCommand(newHeaderCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}

// overrides collects the persistent flags the user set.
func overrides(cmd *cobra.Command) config.Overrides {
	o := config.Overrides{
		Toolchain: toolchain,
		Arch:      arch,
		Variant:   variant,
		LogLevel:  logLevel,
		NoHistory: noHistory,
	}
	if cmd.Flags().Changed("timeout") {
		t := timeout
		o.OperatorTimeout = &t
	}
	return o
}

// withDriver opens the project and runs fn, flushing telemetry afterwards.
func withDriver(cmd *cobra.Command, o config.Overrides, fn func(ctx context.Context, d *driver.Driver) error) error {
	ctx := cmd.Context()
	d, err := driver.New(ctx, driver.Options{Root: rootDir, Overrides: o})
	if err != nil {
		return err
	}
	defer func() {
		_ = d.Close(context.WithoutCancel(ctx))
	}()
	return fn(ctx, d)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
