// Package engine implements the epic build graph.
//
// # Overview
//
// A project's build is described by a table of edges. Each edge states that
// one artifact (the To vertex) is produced from another (the From vertex) by
// an action:
//
//	from,action,to
//	a.cpp,compile,obj/a.obj
//	obj/a.obj,archive,lib/proj.lib
//	lib/proj.lib,link,bin/proj.exe
//
// Vertices are file paths relative to the directory holding the table. They
// fall into three classes:
//
//   - Source: only ever an edge origin; must exist before the build
//   - Intermediate: produced by one edge and consumed by another
//   - Final: only ever produced
//
// # Staleness
//
// Traverse walks the predecessors of a vertex depth first and rebuilds the
// vertex when its artifact is missing or when any input has a strictly newer
// modification time. Rebuilding a vertex runs the Operator registered for its
// action in Operators, passing absolute paths.
//
// All edges producing one vertex (its production group) must share a single
// action and a compile group must have exactly one input. Violations are
// reported as graph integrity errors. Cycles are reported as cycle errors.
//
// # Outputs
//
// Operators write to a temporary sibling of the target which is renamed into
// place on success, so a failed tool never leaves a partial artifact that a
// later build would consider fresh.
//
// # Example Usage
//
//	g, err := engine.Load("graph.csv", engine.Options{Operators: ops})
//	if err != nil {
//	    return err
//	}
//	if err := g.Validate(); err != nil {
//	    return err
//	}
//	summary, err := g.Build(ctx)
package engine
