package driver

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/epicbuild/epic/pkg/engine"
)

// CleanReport lists what Clean removed, as vertex-style relative paths.
type CleanReport struct {
	Files       []string `json:"files"`
	Directories []string `json:"directories"`
}

// Clean removes every intermediate and final artifact, then every directory
// derived from an artifact path that is left empty. Directories are derived
// whether or not the artifact existed, deepest first. The project root is
// never removed and directories that still hold other files are kept.
func (d *Driver) Clean(ctx context.Context) (*CleanReport, error) {
	report := &CleanReport{Files: []string{}, Directories: []string{}}

	ok, err := d.initialized()
	if err != nil || !ok {
		return report, err
	}

	lock, err := acquireLock(d.cfg.Root)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	run := d.beginRun(ctx, "clean")
	err = d.clean(run.ctx, report)
	run.finish(engine.RunSummary{Executed: len(report.Files)}, err)
	return report, err
}

func (d *Driver) clean(ctx context.Context, report *CleanReport) error {
	g, err := d.loadGraph(engine.Options{}, true)
	if err != nil {
		return err
	}

	artifacts := append(g.IntermediateVertices(), g.FinalVertices()...)
	for _, v := range artifacts {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := os.Remove(g.Abs(v))
		switch {
		case err == nil:
			report.Files = append(report.Files, v)
			d.logger.Debug().Str("vertex", v).Msg("Removed artifact")
		case errors.Is(err, fs.ErrNotExist):
		default:
			return engine.NewIOError("remove artifact", err).WithVertex(v)
		}
	}

	for _, dir := range artifactDirs(artifacts) {
		removed, err := removeIfEmpty(g.Abs(dir))
		if err != nil {
			return engine.NewIOError("remove artifact directory", err).WithVertex(dir)
		}
		if removed {
			report.Directories = append(report.Directories, dir)
		}
	}

	d.logger.Info().
		Int("files", len(report.Files)).
		Int("directories", len(report.Directories)).
		Msg("Cleaned project")
	return nil
}

// artifactDirs returns every ancestor directory of the given vertices, below
// the project root, deepest first.
func artifactDirs(vertices []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, v := range vertices {
		for dir := path.Dir(v); dir != "." && dir != "/" && !seen[dir]; dir = path.Dir(dir) {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	sort.Slice(dirs, func(i, j int) bool {
		di, dj := strings.Count(dirs[i], "/"), strings.Count(dirs[j], "/")
		if di != dj {
			return di > dj
		}
		return dirs[i] < dirs[j]
	})
	return dirs
}

// removeIfEmpty removes dir when it is an empty directory. Missing paths,
// files and non-empty directories are left alone.
func removeIfEmpty(dir string) (bool, error) {
	info, err := os.Lstat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	if len(entries) > 0 {
		return false, nil
	}
	if err := os.Remove(dir); err != nil {
		return false, err
	}
	return true, nil
}
