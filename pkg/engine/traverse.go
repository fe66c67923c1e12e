package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// session carries the state of one traversal over the graph.
type session struct {
	g      *BuildGraph
	dryRun bool

	visiting map[string]bool
	stack    []string
	settled  map[string]bool

	// rebuilt marks vertices rebuilt in this session, or planned for rebuild
	// in a dry run. Their dependents are rebuilt regardless of timestamps.
	rebuilt map[string]bool
	steps   []Step
	fresh   []string

	summary RunSummary
}

func (g *BuildGraph) newSession(dryRun bool) *session {
	return &session{
		g:        g,
		dryRun:   dryRun,
		visiting: make(map[string]bool),
		settled:  make(map[string]bool),
		rebuilt:  make(map[string]bool),
	}
}

// Traverse brings vertex up to date. Its predecessors are traversed first,
// depth first, and the vertex is rebuilt when its artifact is missing, any
// input was modified after it, or an input was rebuilt in the same traversal.
func (g *BuildGraph) Traverse(ctx context.Context, vertex string) (RunSummary, error) {
	s := g.newSession(false)
	err := s.traverse(ctx, vertex, 0)
	return s.summary, err
}

// Build traverses every final vertex in order of first appearance.
func (g *BuildGraph) Build(ctx context.Context) (RunSummary, error) {
	s := g.newSession(false)
	for _, v := range g.FinalVertices() {
		if err := s.traverse(ctx, v, 0); err != nil {
			return s.summary, err
		}
	}
	return s.summary, nil
}

// BuildVertex runs the operator for vertex unconditionally. Its inputs must
// already exist.
func (g *BuildGraph) BuildVertex(ctx context.Context, vertex string) error {
	group := g.EdgesTo(vertex)
	if len(group) == 0 {
		return NewGraphIntegrityError(vertex, "vertex has no producing edges")
	}
	s := g.newSession(false)
	return s.buildVertex(ctx, vertex, group, "")
}

func (s *session) traverse(ctx context.Context, vertex string, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.settled[vertex] {
		return nil
	}
	if s.visiting[vertex] {
		return NewCycleDetectedError(s.cycleTo(vertex))
	}

	group := s.g.EdgesTo(vertex)
	if len(group) == 0 {
		s.settled[vertex] = true
		return nil
	}
	if _, err := checkGroup(vertex, group); err != nil {
		return err
	}

	s.visiting[vertex] = true
	s.stack = append(s.stack, vertex)

	inputs := distinctInputs(group)
	inputTimes := make([]time.Time, 0, len(inputs))
	dependencyRebuilt := false
	for _, in := range inputs {
		if err := s.traverse(ctx, in, depth+1); err != nil {
			return err
		}
		if s.rebuilt[in] {
			dependencyRebuilt = true
			continue
		}
		info, err := os.Stat(s.g.Abs(in))
		if err != nil {
			return NewIOError("input artifact unavailable", err).WithVertex(in)
		}
		inputTimes = append(inputTimes, info.ModTime())
	}

	s.stack = s.stack[:len(s.stack)-1]
	delete(s.visiting, vertex)

	reason, err := s.staleness(vertex, inputTimes, dependencyRebuilt)
	if err != nil {
		return err
	}
	s.settled[vertex] = true

	log := s.g.logger.With().Str("vertex", vertex).Int("depth", depth).Logger()
	if reason == "" {
		log.Debug().Msg("Artifact up to date")
		s.summary.Skipped++
		s.fresh = append(s.fresh, vertex)
		if !s.dryRun {
			s.g.observer.VertexSkipped(ctx, vertex)
		}
		return nil
	}

	log.Debug().Str("reason", string(reason)).Msg("Artifact stale")
	if s.dryRun {
		s.rebuilt[vertex] = true
		s.steps = append(s.steps, Step{
			Vertex: vertex,
			Action: group[0].Action,
			Inputs: inputs,
			Reason: reason,
		})
		return nil
	}
	return s.buildVertex(ctx, vertex, group, reason)
}

// staleness returns why vertex must be rebuilt, or "" if it is fresh.
func (s *session) staleness(vertex string, inputTimes []time.Time, dependencyRebuilt bool) (StaleReason, error) {
	abs := s.g.Abs(vertex)
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		if !s.dryRun {
			if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
				return "", NewIOError("create output directory", err).WithVertex(vertex)
			}
		}
		return ReasonMissing, nil
	}
	if err != nil {
		return "", NewIOError("stat artifact", err).WithVertex(vertex)
	}
	if dependencyRebuilt {
		return ReasonDependencyRebuilt, nil
	}
	for _, t := range inputTimes {
		if t.After(info.ModTime()) {
			return ReasonInputNewer, nil
		}
	}
	return "", nil
}

func (s *session) cycleTo(vertex string) []string {
	for i, v := range s.stack {
		if v == vertex {
			cycle := append([]string(nil), s.stack[i:]...)
			return append(cycle, vertex)
		}
	}
	return []string{vertex, vertex}
}

// buildVertex runs the operator for the production group of vertex.
func (s *session) buildVertex(ctx context.Context, vertex string, group []Edge, reason StaleReason) error {
	action, err := checkGroup(vertex, group)
	if err != nil {
		return err
	}
	op, err := s.g.opts.Operators.For(action)
	if err != nil {
		return err
	}

	inputs := distinctInputs(group)
	absInputs := make([]string, len(inputs))
	for i, in := range inputs {
		absInputs[i] = s.g.Abs(in)
	}
	output := s.g.Abs(vertex)
	target := output
	if !s.g.opts.DirectOutputs {
		target = tempSibling(output)
	}

	step := Step{Vertex: vertex, Action: action, Inputs: inputs, Reason: reason}
	s.g.observer.VertexStarted(ctx, step)
	s.g.logger.Info().
		Str("vertex", vertex).
		Str("action", action.String()).
		Int("inputs", len(inputs)).
		Msg("Building artifact")

	opCtx := ctx
	if s.g.opts.OperatorTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, s.g.opts.OperatorTimeout)
		defer cancel()
	}

	start := time.Now()
	err = op.Execute(opCtx, absInputs, target)
	if err == nil && target != output {
		if renameErr := os.Rename(target, output); renameErr != nil {
			err = NewIOError("move artifact into place", renameErr)
		}
	}
	duration := time.Since(start)

	if err != nil {
		if target != output {
			if rmErr := os.Remove(target); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				s.g.logger.Debug().Err(rmErr).Str("path", target).Msg("Failed to remove temporary artifact")
			}
		}
		err = annotate(err, vertex, action)
		s.summary.Failed++
		s.g.observer.VertexFailed(ctx, step, duration, err)
		return err
	}

	s.rebuilt[vertex] = true
	s.summary.Executed++
	s.g.observer.VertexBuilt(ctx, step, duration)
	return nil
}

// checkGroup enforces that a production group uses a single action and that
// compile groups have exactly one input.
func checkGroup(vertex string, group []Edge) (ActionKind, error) {
	action := group[0].Action
	for _, e := range group[1:] {
		if e.Action != action {
			return 0, NewGraphIntegrityError(vertex,
				fmt.Sprintf("mixed actions %s and %s produce one vertex", action, e.Action)).
				WithAction(action)
		}
	}
	if action == ActionCompile && len(group) > 1 {
		return 0, NewGraphIntegrityError(vertex,
			fmt.Sprintf("compile step has %d inputs, want 1", len(group))).
			WithAction(action)
	}
	return action, nil
}

func distinctInputs(group []Edge) []string {
	seen := make(map[string]bool, len(group))
	out := make([]string, 0, len(group))
	for _, e := range group {
		if !seen[e.From] {
			seen[e.From] = true
			out = append(out, e.From)
		}
	}
	return out
}

// tempSibling returns a temporary path next to output that keeps its extension,
// since some tools derive behaviour from the output file type.
func tempSibling(output string) string {
	ext := filepath.Ext(output)
	stem := strings.TrimSuffix(filepath.Base(output), ext)
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return filepath.Join(filepath.Dir(output), stem+".tmp-"+suffix+ext)
}

// annotate attaches vertex context to an operator error.
func annotate(err error, vertex string, action ActionKind) error {
	var e *EngineError
	if errors.As(err, &e) {
		if e.Vertex == "" {
			e.Vertex = vertex
		}
		if e.Action == "" {
			e.Action = action.String()
		}
		return err
	}
	return NewProcessError(action.String(), "", err).WithVertex(vertex).WithAction(action)
}
