package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Plan is the result of a dry-run traversal: the steps a build would run,
// in execution order, without running them.
type Plan struct {
	// ID uniquely identifies this plan.
	ID string `json:"id"`

	// Targets are the vertices the plan brings up to date.
	Targets []string `json:"targets"`

	// Steps lists the operator invocations a build would perform.
	Steps []Step `json:"steps"`

	// UpToDate lists produced vertices that need no work.
	UpToDate []string `json:"up_to_date,omitempty"`

	// CreatedAt is when the plan was computed.
	CreatedAt time.Time `json:"created_at"`
}

// IsEmpty reports whether the plan has no steps.
func (p *Plan) IsEmpty() bool {
	return len(p.Steps) == 0
}

// CountByAction returns the number of steps per action.
func (p *Plan) CountByAction() map[ActionKind]int {
	counts := make(map[ActionKind]int)
	for _, s := range p.Steps {
		counts[s.Action]++
	}
	return counts
}

// Plan computes what a build of targets would do. With no targets every final
// vertex is planned. Output directories are not created and no operator runs.
// Vertices downstream of a planned step are reported with
// ReasonDependencyRebuilt, matching a build, which rebuilds every dependent
// of a vertex it rebuilt.
func (g *BuildGraph) Plan(ctx context.Context, targets []string) (*Plan, error) {
	if len(targets) == 0 {
		targets = g.FinalVertices()
	}
	s := g.newSession(true)
	for _, t := range targets {
		if err := s.traverse(ctx, t, 0); err != nil {
			return nil, err
		}
	}
	return &Plan{
		ID:        uuid.New().String(),
		Targets:   targets,
		Steps:     s.steps,
		UpToDate:  s.fresh,
		CreatedAt: time.Now(),
	}, nil
}
