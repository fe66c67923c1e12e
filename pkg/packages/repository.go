package packages

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/epicbuild/epic/pkg/engine"
)

const resolveCacheSize = 256

// Repository is a local package store laid out as <root>/<identifier>/<version>/.
type Repository struct {
	root  string
	cache *lru.Cache[string, string]
}

// NewRepository creates a repository rooted at root.
func NewRepository(root string) (*Repository, error) {
	cache, err := lru.New[string, string](resolveCacheSize)
	if err != nil {
		return nil, err
	}
	return &Repository{root: root, cache: cache}, nil
}

// Root returns the repository root.
func (r *Repository) Root() string { return r.root }

// Has reports whether identifier has a folder in the repository.
func (r *Repository) Has(identifier string) bool {
	if r.root == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(r.root, identifier))
	return err == nil && info.IsDir()
}

// Resolve returns the version folder used for identifier: the first
// subdirectory by name. Version constraints are not evaluated.
func (r *Repository) Resolve(identifier string) (string, error) {
	if dir, ok := r.cache.Get(identifier); ok {
		return dir, nil
	}

	base := filepath.Join(r.root, identifier)
	entries, err := os.ReadDir(base)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", engine.NewIOError("read dependency folder", err).WithDetail("identifier", identifier)
	}

	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	if len(versions) == 0 {
		return "", engine.NewAmbiguousOrMissingVersionError(identifier, base)
	}
	sort.Strings(versions)

	dir := filepath.Join(base, versions[0])
	r.cache.Add(identifier, dir)
	return dir, nil
}

// Purge drops cached resolutions.
func (r *Repository) Purge() {
	r.cache.Purge()
}

// LibraryName returns the static library file name for identifier: the
// last dot-separated segment plus ".lib".
func LibraryName(identifier string) string {
	parts := strings.Split(identifier, ".")
	return parts[len(parts)-1] + engine.LibraryExt
}
