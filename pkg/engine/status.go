package engine

import (
	"fmt"
)

// RunStatus represents the overall status of a build run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates the run completed successfully.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates the run stopped on an error.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the run was interrupted.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCancelled
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// StepStatus is the outcome of examining one vertex.
type StepStatus string

const (
	// StepStatusBuilt indicates the operator ran and succeeded.
	StepStatusBuilt StepStatus = "built"

	// StepStatusUpToDate indicates the vertex was fresh and skipped.
	StepStatusUpToDate StepStatus = "up_to_date"

	// StepStatusFailed indicates the operator failed.
	StepStatusFailed StepStatus = "failed"
)

// Validate checks if the step status is valid.
func (s StepStatus) Validate() error {
	switch s {
	case StepStatusBuilt, StepStatusUpToDate, StepStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid step status: %s", s)
	}
}

// StaleReason explains why a vertex needs rebuilding.
type StaleReason string

const (
	// ReasonMissing means the artifact does not exist yet.
	ReasonMissing StaleReason = "missing"

	// ReasonInputNewer means an input was modified after the artifact.
	ReasonInputNewer StaleReason = "input_newer"

	// ReasonDependencyRebuilt means an input will itself be rebuilt first.
	// Only reported by dry-run planning.
	ReasonDependencyRebuilt StaleReason = "dependency_rebuilt"
)

// RunSummary counts what a traversal did.
type RunSummary struct {
	// Executed is the number of operator invocations.
	Executed int `json:"executed"`

	// Skipped is the number of artifacts found up to date.
	Skipped int `json:"skipped"`

	// Failed is the number of failed operator invocations.
	Failed int `json:"failed"`
}

// Add accumulates other into s.
func (s *RunSummary) Add(other RunSummary) {
	s.Executed += other.Executed
	s.Skipped += other.Skipped
	s.Failed += other.Failed
}
