package stores

import (
	"context"
	"errors"
	"time"

	"github.com/epicbuild/epic/pkg/engine"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run is one driver command recorded in the history.
type Run struct {
	ID          string           `json:"id"`
	Root        string           `json:"root"`
	Command     string           `json:"command"`
	Toolchain   string           `json:"toolchain"`
	BuildConfig string           `json:"build_config"`
	Status      engine.RunStatus `json:"status"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Error       *string          `json:"error,omitempty"`

	engine.RunSummary
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Step is one vertex examined during a run.
type Step struct {
	ID        int64             `json:"id"`
	RunID     string            `json:"run_id"`
	Vertex    string            `json:"vertex"`
	Action    string            `json:"action"`
	Status    engine.StepStatus `json:"status"`
	Reason    string            `json:"reason,omitempty"`
	Inputs    int               `json:"inputs"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
	Error     *string           `json:"error,omitempty"`
}

// Store persists build history.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, id string, status engine.RunStatus, summary engine.RunSummary, errMsg *string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	PruneRuns(ctx context.Context, keep int) (int64, error)

	// Step operations
	AppendStep(ctx context.Context, step *Step) error
	ListSteps(ctx context.Context, runID string) ([]*Step, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
