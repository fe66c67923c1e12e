package engine

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Artifact layout used by autopopulation.
const (
	ObjectDir  = "obj"
	LibraryDir = "lib"
	BinaryDir  = "bin"

	ObjectExt     = ".obj"
	LibraryExt    = ".lib"
	ExecutableExt = ".exe"
)

// SourceExts are the file extensions AutopopCompiles picks up.
var SourceExts = []string{".c", ".cpp"}

// Project returns the project name, which is the name of the graph directory.
func (g *BuildGraph) Project() string {
	return filepath.Base(g.dir)
}

// LibraryVertex returns the vertex of the project's static library.
func (g *BuildGraph) LibraryVertex() string {
	return path.Join(LibraryDir, g.Project()+LibraryExt)
}

// AutopopCompiles adds a compile edge for every C or C++ source file in the
// graph directory. Calling it twice adds duplicate edges.
func (g *BuildGraph) AutopopCompiles() error {
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		return NewIOError("scan project directory", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	added := 0
	for _, entry := range entries {
		if entry.IsDir() || !isSourceFile(entry.Name()) {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		g.AddEdge(Edge{
			From:   entry.Name(),
			Action: ActionCompile,
			To:     path.Join(ObjectDir, stem+ObjectExt),
		})
		added++
	}
	g.logger.Debug().Int("edges", added).Msg("Populated compile edges")
	return nil
}

// AutopopArchives adds an archive edge into the project library for every
// object file whose name does not start with main or test.
func (g *BuildGraph) AutopopArchives() {
	lib := g.LibraryVertex()
	added := 0
	for _, v := range g.Vertices() {
		name := path.Base(v)
		if !strings.HasSuffix(name, ObjectExt) || isEntryPoint(name) {
			continue
		}
		g.AddEdge(Edge{From: v, Action: ActionArchive, To: lib})
		added++
	}
	g.logger.Debug().Int("edges", added).Str("library", lib).Msg("Populated archive edges")
}

// AutopopLinks adds link edges for every main or test object file. Each
// executable links its own object and, when the graph produces one, the
// project library. Without archive edges the library edge is omitted, so an
// entry object yields one link edge instead of two and no unbuildable
// library source enters the graph.
func (g *BuildGraph) AutopopLinks() {
	lib := g.LibraryVertex()
	hasLib := len(g.EdgesTo(lib)) > 0
	added := 0
	for _, v := range g.Vertices() {
		name := path.Base(v)
		if !strings.HasSuffix(name, ObjectExt) || !isEntryPoint(name) {
			continue
		}
		exe := path.Join(BinaryDir, ExecutableName(g.Project(), strings.TrimSuffix(name, ObjectExt))+ExecutableExt)
		if hasLib {
			g.AddEdge(Edge{From: lib, Action: ActionLink, To: exe})
			added++
		}
		g.AddEdge(Edge{From: v, Action: ActionLink, To: exe})
		added++
	}
	g.logger.Debug().Int("edges", added).Msg("Populated link edges")
}

// ExecutableName maps an entry-point object stem to its executable name:
// "test" stays "test", "test_X" and "main_X" become "X", and "main" becomes
// the project name.
func ExecutableName(project, stem string) string {
	switch {
	case stem == "main":
		return project
	case strings.HasPrefix(stem, "main_"):
		return strings.TrimPrefix(stem, "main_")
	case strings.HasPrefix(stem, "test_"):
		return strings.TrimPrefix(stem, "test_")
	default:
		return stem
	}
}

func isSourceFile(name string) bool {
	ext := filepath.Ext(name)
	for _, s := range SourceExts {
		if ext == s {
			return true
		}
	}
	return false
}

func isEntryPoint(name string) bool {
	return strings.HasPrefix(name, "main") || strings.HasPrefix(name, "test")
}
