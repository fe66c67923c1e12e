package packages

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/epicbuild/epic/pkg/config"
	"github.com/epicbuild/epic/pkg/engine"
)

// Package is a source folder with an optional package.json.
type Package struct {
	dir      string
	settings Settings
}

// Loader opens packages, sharing one schema registry and validator.
type Loader struct {
	schemas   *config.SchemaRegistry
	validator *validator.Validate
}

// NewLoader creates a package loader.
func NewLoader(schemas *config.SchemaRegistry) *Loader {
	if schemas == nil {
		schemas = config.NewSchemaRegistry()
	}
	return &Loader{schemas: schemas, validator: validator.New()}
}

// Open is shorthand for NewLoader(nil).Open.
func Open(ctx context.Context, dir string) (*Package, error) {
	return NewLoader(nil).Open(ctx, dir)
}

// Open loads the package rooted at dir. A missing package.json yields empty
// settings; Open never writes it.
func (l *Loader) Open(ctx context.Context, dir string) (*Package, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, engine.NewIOError("resolve package directory", err)
	}

	p := &Package{dir: abs}
	data, err := os.ReadFile(filepath.Join(abs, ManifestName))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return p, nil
	case err != nil:
		return nil, engine.NewIOError("read "+ManifestName, err)
	}

	s, err := parseManifest(ctx, data, l.schemas, l.validator)
	if err != nil {
		return nil, err
	}
	p.settings = s
	return p, nil
}

// Dir returns the absolute package directory.
func (p *Package) Dir() string { return p.dir }

// Settings returns the package settings.
func (p *Package) Settings() Settings { return p.settings }

// Name returns the declared name, falling back to the folder name.
func (p *Package) Name() string {
	if n := p.settings.Name(); n != "" {
		return n
	}
	return filepath.Base(p.dir)
}

// Sources returns the library sources: C and C++ files that are neither
// mains nor tests.
func (p *Package) Sources() ([]string, error) {
	return p.filter(func(name string) bool {
		return isSource(name) && !strings.HasPrefix(name, "main") && !strings.HasPrefix(name, "test")
	})
}

// Mains returns main*.c[pp] files, excluding main_test_*.
func (p *Package) Mains() ([]string, error) {
	return p.filter(func(name string) bool {
		return isSource(name) && strings.HasPrefix(name, "main") && !strings.HasPrefix(name, "main_test_")
	})
}

// Tests returns test_* and main_test_* sources.
func (p *Package) Tests() ([]string, error) {
	return p.filter(func(name string) bool {
		return isSource(name) && (strings.HasPrefix(name, "test_") || strings.HasPrefix(name, "main_test_"))
	})
}

// Headers returns the .h files in the package root.
func (p *Package) Headers() ([]string, error) {
	return p.filter(func(name string) bool { return filepath.Ext(name) == ".h" })
}

// filter returns the sorted names of root-level files matching keep.
func (p *Package) filter(keep func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, engine.NewIOError("list package directory", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && keep(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func isSource(name string) bool {
	ext := filepath.Ext(name)
	for _, s := range engine.SourceExts {
		if ext == s {
			return true
		}
	}
	return false
}
