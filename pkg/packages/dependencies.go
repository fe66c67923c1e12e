package packages

import (
	"os"
	"path/filepath"

	"github.com/epicbuild/epic/pkg/engine"
)

// AssertDependencies checks that every declared dependency has a folder in
// repo. All missing identifiers are reported together.
func (p *Package) AssertDependencies(repo *Repository) error {
	var missing []string
	for _, id := range p.settings.DependencyIDs() {
		if !repo.Has(id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return engine.NewMissingDependencyError(missing).WithDetail("repository", repo.Root())
	}
	return nil
}

// DepPaths returns the resolved version folder of every dependency, in
// identifier order. These are the dependency include directories.
func (p *Package) DepPaths(repo *Repository) ([]string, error) {
	ids := p.settings.DependencyIDs()
	paths := make([]string, 0, len(ids))
	for _, id := range ids {
		dir, err := repo.Resolve(id)
		if err != nil {
			return nil, err
		}
		paths = append(paths, dir)
	}
	return paths, nil
}

// DepLibraries returns <version>/lib/<buildConfig>/<name>.lib for every
// dependency. All missing library files are reported together.
func (p *Package) DepLibraries(repo *Repository, buildConfig string) ([]string, error) {
	ids := p.settings.DependencyIDs()
	libs := make([]string, 0, len(ids))
	var missing []string
	for _, id := range ids {
		dir, err := repo.Resolve(id)
		if err != nil {
			return nil, err
		}
		lib := filepath.Join(dir, "lib", buildConfig, LibraryName(id))
		if info, err := os.Stat(lib); err != nil || info.IsDir() {
			missing = append(missing, lib)
			continue
		}
		libs = append(libs, lib)
	}
	if len(missing) > 0 {
		return nil, engine.NewMissingDependencyError(missing).WithDetail("config", buildConfig)
	}
	return libs, nil
}
