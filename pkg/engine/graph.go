package engine

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// TableHeader is the column layout of a persisted build graph.
var TableHeader = []string{"from", "action", "to"}

// DefaultTableName is the graph table file name inside a project root.
const DefaultTableName = "graph.csv"

// tableMode is the mode of a newly created table.
const tableMode fs.FileMode = 0o644

// Options configures a BuildGraph.
type Options struct {
	// Operators executes build actions. Required for Traverse.
	Operators Operators

	// Logger receives traversal logs. Defaults to a disabled logger.
	Logger *zerolog.Logger

	// Observer receives per-vertex notifications. Defaults to NopObserver.
	Observer Observer

	// OperatorTimeout bounds a single operator invocation. Zero means no limit.
	OperatorTimeout time.Duration

	// DirectOutputs makes operators write straight to the target path instead
	// of a temporary sibling that is renamed into place on success.
	DirectOutputs bool
}

// BuildGraph is the edge table of a project together with the machinery to
// bring its artifacts up to date. Artifacts live relative to the directory
// holding the table.
type BuildGraph struct {
	table string
	dir   string
	edges []Edge
	opts  Options

	logger   zerolog.Logger
	observer Observer

	// index caches adjacency for the current edge set. nil after a mutation.
	index *adjacency
}

// adjacency is a precomputed view of the edge list.
type adjacency struct {
	vertices []string
	incoming map[string][]int
	outDeg   map[string]int
}

// Load reads the build graph table at path. If no table exists, an empty one
// containing only the header is created.
func Load(path string, opts Options) (*BuildGraph, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, NewIOError("resolve table path", err)
	}

	g := &BuildGraph{
		table:    abs,
		dir:      filepath.Dir(abs),
		opts:     opts,
		logger:   zerolog.Nop(),
		observer: NopObserver{},
	}
	if opts.Logger != nil {
		g.logger = opts.Logger.With().Str("component", "graph").Logger()
	}
	if opts.Observer != nil {
		g.observer = opts.Observer
	}

	f, err := os.Open(abs)
	if errors.Is(err, fs.ErrNotExist) {
		if err := g.Save(); err != nil {
			return nil, err
		}
		g.logger.Debug().Str("table", abs).Msg("Created empty build graph table")
		return g, nil
	}
	if err != nil {
		return nil, NewIOError("open build graph table", err)
	}
	defer f.Close()

	edges, err := readTable(f)
	if err != nil {
		return nil, NewIOError(fmt.Sprintf("read build graph table %s", abs), err)
	}
	g.edges = edges
	return g, nil
}

func readTable(r io.Reader) ([]Edge, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(TableHeader)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for i, col := range TableHeader {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected header %v", header)
		}
	}

	var edges []Edge
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return edges, nil
		}
		if err != nil {
			return nil, err
		}
		action, err := ParseActionKind(rec[1])
		if err != nil {
			line, _ := cr.FieldPos(1)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		edges = append(edges, Edge{From: rec[0], Action: action, To: rec[2]})
	}
}

// Save writes the edge table back to disk. The table is written to a
// temporary file and renamed over the original.
func (g *BuildGraph) Save() error {
	mode := tableMode
	if info, err := os.Stat(g.table); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(g.dir, ".graph-*.csv")
	if err != nil {
		return NewIOError("create temporary table", err)
	}
	defer os.Remove(tmp.Name())

	// CreateTemp uses 0600; the table keeps its mode across saves.
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return NewIOError("set build graph table mode", err)
	}
	if err := writeTable(tmp, g.edges); err != nil {
		tmp.Close()
		return NewIOError("write build graph table", err)
	}
	if err := tmp.Close(); err != nil {
		return NewIOError("write build graph table", err)
	}
	if err := os.Rename(tmp.Name(), g.table); err != nil {
		return NewIOError("replace build graph table", err)
	}
	return nil
}

func writeTable(w io.Writer, edges []Edge) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TableHeader); err != nil {
		return err
	}
	for _, e := range edges {
		if err := cw.Write([]string{e.From, e.Action.String(), e.To}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Path returns the absolute path of the table.
func (g *BuildGraph) Path() string { return g.table }

// Dir returns the directory artifacts are resolved against.
func (g *BuildGraph) Dir() string { return g.dir }

// Edges returns a copy of the edge list in insertion order.
func (g *BuildGraph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// AddEdge appends an edge. The table is not persisted until Save.
func (g *BuildGraph) AddEdge(e Edge) {
	g.edges = append(g.edges, e)
	g.index = nil
}

// Abs resolves a vertex to an absolute filesystem path.
func (g *BuildGraph) Abs(vertex string) string {
	return filepath.Join(g.dir, filepath.FromSlash(vertex))
}

func (g *BuildGraph) adjacency() *adjacency {
	if g.index != nil {
		return g.index
	}
	idx := &adjacency{
		incoming: make(map[string][]int),
		outDeg:   make(map[string]int),
	}
	seen := make(map[string]bool)
	add := func(v string) {
		if !seen[v] {
			seen[v] = true
			idx.vertices = append(idx.vertices, v)
		}
	}
	for i, e := range g.edges {
		add(e.From)
		add(e.To)
		idx.outDeg[e.From]++
		idx.incoming[e.To] = append(idx.incoming[e.To], i)
	}
	g.index = idx
	return idx
}

// Vertices returns every edge endpoint once, in order of first appearance.
func (g *BuildGraph) Vertices() []string {
	return append([]string(nil), g.adjacency().vertices...)
}

// Classify returns the class of vertex, or "" if it is not in the graph.
func (g *BuildGraph) Classify(vertex string) VertexClass {
	idx := g.adjacency()
	in := len(idx.incoming[vertex]) > 0
	out := idx.outDeg[vertex] > 0
	switch {
	case in && out:
		return VertexIntermediate
	case in:
		return VertexFinal
	case out:
		return VertexSource
	default:
		return ""
	}
}

func (g *BuildGraph) verticesOf(class VertexClass) []string {
	var out []string
	for _, v := range g.adjacency().vertices {
		if g.Classify(v) == class {
			out = append(out, v)
		}
	}
	return out
}

// SourceVertices returns vertices that are only ever edge origins.
func (g *BuildGraph) SourceVertices() []string { return g.verticesOf(VertexSource) }

// IntermediateVertices returns vertices that are both produced and consumed.
func (g *BuildGraph) IntermediateVertices() []string { return g.verticesOf(VertexIntermediate) }

// FinalVertices returns vertices that are only ever edge destinations.
func (g *BuildGraph) FinalVertices() []string { return g.verticesOf(VertexFinal) }

// EdgesTo returns the production group of vertex: every edge whose To is vertex.
func (g *BuildGraph) EdgesTo(vertex string) []Edge {
	idxs := g.adjacency().incoming[vertex]
	out := make([]Edge, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, g.edges[i])
	}
	return out
}
