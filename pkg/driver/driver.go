package driver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/epicbuild/epic/pkg/config"
	"github.com/epicbuild/epic/pkg/engine"
	"github.com/epicbuild/epic/pkg/operators"
	"github.com/epicbuild/epic/pkg/packages"
	"github.com/epicbuild/epic/pkg/telemetry"
)

// ErrNotInitialized is returned by read-only commands when the project has
// no graph table yet.
var ErrNotInitialized = errors.New("project not initialized")

// Options configures a Driver.
type Options struct {
	// Root is the project directory. Defaults to the working directory.
	Root string

	// Overrides are applied on top of epic.yaml, .env and the environment.
	Overrides config.Overrides

	// Telemetry receives logs, spans, metrics and events. When nil, one is
	// created from the loaded configuration and shut down by Close.
	Telemetry *telemetry.Telemetry

	// Operators replaces toolchain resolution. Dependencies are still
	// resolved and checked.
	Operators *engine.Operators

	// Runner starts toolchain processes. Defaults to operators.ExecRunner.
	Runner operators.Runner

	// LookupEnv reads the process environment. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)

	// Now stamps generated headers. Defaults to time.Now.
	Now func() time.Time
}

// Driver runs epic commands against one project root.
type Driver struct {
	cfg     config.Config
	opts    Options
	tel     *telemetry.Telemetry
	ownsTel bool
	logger  zerolog.Logger
}

// New loads the configuration of the project and prepares telemetry.
func New(ctx context.Context, opts Options) (*Driver, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}

	loader := config.NewLoader()
	if opts.LookupEnv != nil {
		loader.LookupEnv = opts.LookupEnv
	}
	cfg, err := loader.Load(ctx, root, opts.Overrides)
	if err != nil {
		return nil, err
	}

	d := &Driver{cfg: cfg, opts: opts, tel: opts.Telemetry}
	if d.tel == nil {
		tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		d.tel = tel
		d.ownsTel = true
	}
	d.logger = d.tel.Logger.NewComponentLogger("driver").Zerolog().With().
		Str("root", cfg.Root).
		Logger()
	if d.opts.Now == nil {
		d.opts.Now = time.Now
	}
	return d, nil
}

// Config returns the resolved configuration.
func (d *Driver) Config() config.Config { return d.cfg }

// Root returns the absolute project directory.
func (d *Driver) Root() string { return d.cfg.Root }

// Telemetry returns the telemetry instance the driver reports to.
func (d *Driver) Telemetry() *telemetry.Telemetry { return d.tel }

// TablePath returns the path of the project's graph table.
func (d *Driver) TablePath() string {
	return filepath.Join(d.cfg.Root, engine.DefaultTableName)
}

// Close flushes telemetry created by New.
func (d *Driver) Close(ctx context.Context) error {
	if !d.ownsTel {
		// Shared telemetry outlives the driver; only export what it traced.
		return d.tel.Tracer.ForceFlush(ctx)
	}
	return d.tel.Shutdown(ctx)
}

func (d *Driver) initialized() (bool, error) {
	_, err := os.Stat(d.TablePath())
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, engine.NewIOError("stat build graph table", err)
	}
	return true, nil
}

// loadGraph opens the graph table. With mustExist, a missing table is
// ErrNotInitialized instead of being created.
func (d *Driver) loadGraph(opts engine.Options, mustExist bool) (*engine.BuildGraph, error) {
	if mustExist {
		ok, err := d.initialized()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s not found", ErrNotInitialized, d.TablePath())
		}
	}
	if opts.Logger == nil {
		opts.Logger = d.tel.Logger.Zerolog()
	}
	return engine.Load(d.TablePath(), opts)
}

func (d *Driver) openPackage(ctx context.Context) (*packages.Package, error) {
	return packages.Open(ctx, d.cfg.Root)
}

// resolveOperators checks the package dependencies and creates the toolchain
// operators with their include directories, libraries, defines and options.
func (d *Driver) resolveOperators(ctx context.Context, pkg *packages.Package) (engine.Operators, error) {
	settings := pkg.Settings()
	s := operators.Settings{
		Arch:           d.cfg.Arch,
		Variant:        d.cfg.Variant,
		Defines:        settings.Defines(),
		CompileOptions: settings.Options(engine.ActionCompile),
		ArchiveOptions: settings.Options(engine.ActionArchive),
		LinkOptions:    settings.Options(engine.ActionLink),
		Runner:         d.runner(),
	}

	if len(settings.DependencyIDs()) > 0 {
		repo, err := packages.NewRepository(d.cfg.LocalRepo)
		if err != nil {
			return engine.Operators{}, err
		}
		if err := pkg.AssertDependencies(repo); err != nil {
			return engine.Operators{}, err
		}
		if s.IncludeDirs, err = pkg.DepPaths(repo); err != nil {
			return engine.Operators{}, err
		}
		if s.Libraries, err = pkg.DepLibraries(repo, d.cfg.BuildConfigString()); err != nil {
			return engine.Operators{}, err
		}
		d.logger.Debug().
			Int("dependencies", len(s.IncludeDirs)).
			Str("config", d.cfg.BuildConfigString()).
			Msg("Resolved dependencies")
	}

	if d.opts.Operators != nil {
		return *d.opts.Operators, nil
	}

	tc, err := operators.Resolve(ctx, d.cfg.Toolchain, s)
	if err != nil {
		return engine.Operators{}, err
	}
	d.logger.Debug().Str("toolchain", tc.Name).Msg("Using toolchain")
	return tc.Operators(), nil
}

func (d *Driver) runner() operators.Runner {
	if d.opts.Runner != nil {
		return d.opts.Runner
	}
	return operators.ExecRunner{Logger: d.tel.Logger.Zerolog()}
}

// Report summarizes one build.
type Report struct {
	RunID    string            `json:"run_id"`
	Summary  engine.RunSummary `json:"summary"`
	Duration time.Duration     `json:"duration"`
}

// Build brings every final artifact of the project up to date.
func (d *Driver) Build(ctx context.Context) (*Report, error) {
	lock, err := acquireLock(d.cfg.Root)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	run := d.beginRun(ctx, "build")
	start := time.Now()
	summary, err := d.build(run)
	run.finish(summary, err)

	return &Report{RunID: run.id, Summary: summary, Duration: time.Since(start)}, err
}

func (d *Driver) build(run *runRecorder) (engine.RunSummary, error) {
	ctx := run.ctx

	pkg, err := d.openPackage(ctx)
	if err != nil {
		return engine.RunSummary{}, err
	}
	ops, err := d.resolveOperators(ctx, pkg)
	if err != nil {
		return engine.RunSummary{}, err
	}

	observer := newBuildObserver(d.tel, run)
	g, err := d.loadGraph(engine.Options{
		Operators:       ops,
		Logger:          run.logger,
		Observer:        observer,
		OperatorTimeout: d.cfg.OperatorTimeout,
		DirectOutputs:   d.cfg.DirectOutputs,
	}, false)
	if err != nil {
		return engine.RunSummary{}, err
	}
	observer.graph = g

	if err := g.Validate(); err != nil {
		return engine.RunSummary{}, err
	}
	return g.Build(ctx)
}
