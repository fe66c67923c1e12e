package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/epicbuild/epic/pkg/engine"
	"github.com/epicbuild/epic/pkg/packages"
	"github.com/epicbuild/epic/pkg/stores"
	"github.com/epicbuild/epic/pkg/telemetry"
)

// ErrHistoryDisabled is returned by history queries when history is off.
var ErrHistoryDisabled = errors.New("build history is disabled")

// Plan reports what Build would do for targets without running anything.
// With no targets every final vertex is planned.
func (d *Driver) Plan(ctx context.Context, targets []string) (plan *engine.Plan, err error) {
	op := d.startOperation(ctx, "plan")
	defer func() { op.End(err) }()
	ctx = op.Ctx

	g, err := d.loadGraph(engine.Options{}, true)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g.Plan(ctx, targets)
}

// GraphReport summarizes a validated graph.
type GraphReport struct {
	Edges         int        `json:"edges"`
	Sources       []string   `json:"sources"`
	Intermediates []string   `json:"intermediates"`
	Finals        []string   `json:"finals"`
	Levels        [][]string `json:"levels"`
	MissingInputs []string   `json:"missing_inputs,omitempty"`
}

// Validate checks the graph table and the package manifest without building.
// Source vertices that do not exist are listed in the report but are not an
// error, since they may be generated before the next build.
func (d *Driver) Validate(ctx context.Context) (report *GraphReport, err error) {
	op := d.startOperation(ctx, "validate")
	defer func() { op.End(err) }()
	ctx = op.Ctx

	if _, err := d.openPackage(ctx); err != nil {
		return nil, err
	}
	g, err := d.loadGraph(engine.Options{}, true)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}

	report = &GraphReport{
		Edges:         len(g.Edges()),
		Sources:       nonNil(g.SourceVertices()),
		Intermediates: nonNil(g.IntermediateVertices()),
		Finals:        nonNil(g.FinalVertices()),
		Levels:        levels,
	}
	for _, v := range report.Sources {
		if _, err := os.Stat(g.Abs(v)); errors.Is(err, fs.ErrNotExist) {
			report.MissingInputs = append(report.MissingInputs, v)
		}
	}
	return report, nil
}

// Graph writes the graph in Graphviz DOT form.
func (d *Driver) Graph(ctx context.Context, w io.Writer) error {
	g, err := d.loadGraph(engine.Options{}, true)
	if err != nil {
		return err
	}
	return g.ToDOT(w)
}

// Dependency is one resolved package dependency.
type Dependency struct {
	ID         string `json:"id"`
	Constraint string `json:"constraint"`
	Path       string `json:"path"`
	Library    string `json:"library"`
}

// Deps resolves every dependency of the package against the local
// repository for the configured build configuration.
func (d *Driver) Deps(ctx context.Context) (deps []Dependency, err error) {
	op := d.startOperation(ctx, "deps")
	defer func() { op.End(err) }()
	ctx = op.Ctx

	pkg, err := d.openPackage(ctx)
	if err != nil {
		return nil, err
	}
	settings := pkg.Settings()
	ids := settings.DependencyIDs()
	deps = make([]Dependency, 0, len(ids))
	if len(ids) == 0 {
		return deps, nil
	}

	repo, err := packages.NewRepository(d.cfg.LocalRepo)
	if err != nil {
		return nil, err
	}
	if err := pkg.AssertDependencies(repo); err != nil {
		return nil, err
	}
	paths, err := pkg.DepPaths(repo)
	if err != nil {
		return nil, err
	}
	libs, err := pkg.DepLibraries(repo, d.cfg.BuildConfigString())
	if err != nil {
		return nil, err
	}

	constraints := settings.Dependencies()
	for i, id := range ids {
		deps = append(deps, Dependency{
			ID:         id,
			Constraint: constraints[id],
			Path:       paths[i],
			Library:    libs[i],
		})
	}
	return deps, nil
}

// Header writes the package's aggregate header and returns its path.
func (d *Driver) Header(ctx context.Context) (string, error) {
	pkg, err := d.openPackage(ctx)
	if err != nil {
		return "", err
	}
	path, err := pkg.BuildHeader(d.opts.Now())
	if err != nil {
		return "", err
	}
	d.logger.Info().Str("header", filepath.Base(path)).Msg("Generated package header")
	return path, nil
}

// History returns the most recent runs, newest first.
func (d *Driver) History(ctx context.Context, limit int) ([]*stores.Run, error) {
	store, err := d.openHistory(ctx)
	if err != nil || store == nil {
		return []*stores.Run{}, err
	}
	defer store.Close()
	return store.ListRuns(ctx, limit, 0)
}

// RunDetail returns one recorded run and its steps.
func (d *Driver) RunDetail(ctx context.Context, runID string) (*stores.Run, []*stores.Step, error) {
	store, err := d.openHistory(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, fmt.Errorf("%w: %s", stores.ErrRunNotFound, runID)
	}
	defer store.Close()

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	steps, err := store.ListSteps(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	return run, steps, nil
}

// openHistory opens the history database, or returns nil when none has been
// written yet.
func (d *Driver) openHistory(ctx context.Context) (*stores.SQLiteStore, error) {
	if !d.cfg.History.Enabled {
		return nil, ErrHistoryDisabled
	}
	path := d.cfg.HistoryPath()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return stores.Open(ctx, stores.Config{Path: path})
}

// startOperation traces a read-only command under the driver's telemetry.
func (d *Driver) startOperation(ctx context.Context, name string) *telemetry.InstrumentedContext {
	return telemetry.StartOperation(d.tel.WithContext(ctx), "epic."+name,
		telemetry.AttrCommand.String(name),
		telemetry.AttrProjectRoot.String(d.cfg.Root))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
