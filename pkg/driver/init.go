package driver

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/epicbuild/epic/pkg/config"
	"github.com/epicbuild/epic/pkg/engine"
	"github.com/epicbuild/epic/pkg/packages"
)

// GitignoreEntries are written to .gitignore by Init.
var GitignoreEntries = []string{
	engine.BinaryDir + "/",
	engine.LibraryDir + "/",
	engine.ObjectDir + "/",
	config.StateDir + "/",
	LockFileName,
}

// InitReport describes a freshly initialized project.
type InitReport struct {
	Table   string   `json:"table"`
	Edges   int      `json:"edges"`
	Created []string `json:"created"`
}

// Init creates the graph table and populates it from the sources in the
// project root: compile edges, then archive edges into the project library,
// then link edges for every main and test object. It also writes an empty
// package.json and a .gitignore when they are absent.
func (d *Driver) Init(ctx context.Context) (*InitReport, error) {
	ok, err := d.initialized()
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, engine.NewAlreadyInitializedError(d.TablePath())
	}

	lock, err := acquireLock(d.cfg.Root)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	run := d.beginRun(ctx, "init")
	report, err := d.init()
	summary := engine.RunSummary{}
	if report != nil {
		summary.Executed = report.Edges
	}
	run.finish(summary, err)
	return report, err
}

func (d *Driver) init() (*InitReport, error) {
	g, err := d.loadGraph(engine.Options{}, false)
	if err != nil {
		return nil, err
	}
	// Load created an empty table; drop it again so init can be retried.
	if err := populate(g); err != nil {
		if rmErr := os.Remove(g.Path()); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			d.logger.Warn().Err(rmErr).Str("table", g.Path()).Msg("Failed to remove incomplete build graph table")
		}
		return nil, err
	}

	report := &InitReport{
		Table:   g.Path(),
		Edges:   len(g.Edges()),
		Created: []string{engine.DefaultTableName},
	}

	files := []struct {
		name    string
		content string
	}{
		{packages.ManifestName, "{}\n"},
		{".gitignore", strings.Join(GitignoreEntries, "\n") + "\n"},
	}
	for _, f := range files {
		created, err := writeIfAbsent(filepath.Join(d.cfg.Root, f.name), f.content)
		if err != nil {
			return nil, engine.NewIOError("write "+f.name, err)
		}
		if created {
			report.Created = append(report.Created, f.name)
		}
	}

	d.logger.Info().
		Int("edges", report.Edges).
		Strs("created", report.Created).
		Msg("Initialized project")
	return report, nil
}

func populate(g *engine.BuildGraph) error {
	if err := g.AutopopCompiles(); err != nil {
		return err
	}
	g.AutopopArchives()
	g.AutopopLinks()
	return g.Save()
}

func writeIfAbsent(path, content string) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}
