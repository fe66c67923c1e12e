package engine

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
)

// Validate checks the whole graph before anything is built: every production
// group must be action-homogeneous, compile groups must have one input, and
// the graph must be acyclic. Integrity problems are reported together.
func (g *BuildGraph) Validate() error {
	var problems []string
	var first *EngineError
	for _, v := range g.Vertices() {
		group := g.EdgesTo(v)
		if len(group) == 0 {
			continue
		}
		if _, err := checkGroup(v, group); err != nil {
			var e *EngineError
			errors.As(err, &e)
			if first == nil {
				first = e
			}
			problems = append(problems, fmt.Sprintf("%s: %s", v, e.Message))
		}
	}
	if len(problems) > 1 {
		return NewGraphIntegrityError(first.Vertex, strings.Join(problems, "; ")).
			WithDetail("problems", problems)
	}
	if first != nil {
		return first
	}

	_, err := g.dependencyGraph()
	return err
}

// dependencyGraph converts the edge table into a directed graph, failing on
// the first edge that closes a cycle.
func (g *BuildGraph) dependencyGraph() (graph.Graph[string, string], error) {
	dg := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for _, v := range g.Vertices() {
		attrs := []func(*graph.VertexProperties){graph.VertexAttribute("shape", "box")}
		if g.Classify(v) == VertexSource {
			attrs = append(attrs, graph.VertexAttribute("style", "dashed"))
		}
		if err := dg.AddVertex(v, attrs...); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return nil, err
		}
	}
	for _, e := range g.edges {
		if e.From == e.To {
			return nil, NewCycleDetectedError([]string{e.From, e.To})
		}
		err := dg.AddEdge(e.From, e.To, graph.EdgeAttribute("label", e.Action.String()))
		switch {
		case err == nil, errors.Is(err, graph.ErrEdgeAlreadyExists):
		case errors.Is(err, graph.ErrEdgeCreatesCycle):
			back, pathErr := graph.ShortestPath(dg, e.To, e.From)
			if pathErr != nil {
				return nil, NewCycleDetectedError([]string{e.From, e.To, e.From})
			}
			cycle := append([]string{e.From}, back...)
			return nil, NewCycleDetectedError(cycle)
		default:
			return nil, err
		}
	}
	return dg, nil
}

// Levels groups vertices by build depth: level 0 holds sources and every
// other vertex sits one level above its deepest input. Vertices within a
// level are sorted.
func (g *BuildGraph) Levels() ([][]string, error) {
	inDegree := make(map[string]int)
	dependents := make(map[string][]string)
	for _, v := range g.Vertices() {
		inDegree[v] = 0
	}
	for _, v := range g.Vertices() {
		for _, in := range distinctInputs(g.EdgesTo(v)) {
			dependents[in] = append(dependents[in], v)
			inDegree[v]++
		}
	}

	current := make([]string, 0)
	for v, d := range inDegree {
		if d == 0 {
			current = append(current, v)
		}
	}

	var levels [][]string
	processed := 0
	for len(current) > 0 {
		sort.Strings(current)
		levels = append(levels, current)
		processed += len(current)

		next := make([]string, 0)
		for _, v := range current {
			for _, dep := range dependents[v] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}

	if processed != len(inDegree) {
		_, err := g.dependencyGraph()
		if err == nil {
			err = NewCycleDetectedError(nil)
		}
		return nil, err
	}
	return levels, nil
}

// ToDOT writes a Graphviz rendering of the graph. Edges are labelled with
// their action and source vertices are dashed.
func (g *BuildGraph) ToDOT(w io.Writer) error {
	dg, err := g.dependencyGraph()
	if err != nil {
		return err
	}
	return draw.DOT(dg, w,
		draw.GraphAttribute("rankdir", "LR"),
		draw.GraphAttribute("label", g.Project()),
	)
}
