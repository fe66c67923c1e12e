package engine

import (
	"context"
	"time"
)

// Operator runs one toolchain step: compile, archive or link.
// Paths passed to an Operator are absolute.
type Operator interface {
	// Execute produces output from inputs. A failing tool is reported as a
	// process error carrying the tool's captured output.
	Execute(ctx context.Context, inputs []string, output string) error

	// AssertExists verifies that the tool can be started. A missing tool is
	// reported as a tool-not-found error.
	AssertExists(ctx context.Context) error
}

// Operators holds the Operator used for each ActionKind.
type Operators struct {
	Compile Operator
	Archive Operator
	Link    Operator
}

// For returns the operator registered for action.
func (o Operators) For(action ActionKind) (Operator, error) {
	var op Operator
	switch action {
	case ActionCompile:
		op = o.Compile
	case ActionArchive:
		op = o.Archive
	case ActionLink:
		op = o.Link
	default:
		return nil, action.Validate()
	}
	if op == nil {
		return nil, NewToolNotFoundError(action.String(), nil).WithAction(action)
	}
	return op, nil
}

// AssertExists checks every registered operator and returns the first failure.
func (o Operators) AssertExists(ctx context.Context) error {
	for _, action := range AllActions {
		op, err := o.For(action)
		if err != nil {
			return err
		}
		if err := op.AssertExists(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Observer receives build progress notifications from a traversal.
// Implementations must not block for long; they run on the build path.
type Observer interface {
	// VertexStarted is called before an operator runs for vertex.
	VertexStarted(ctx context.Context, step Step)

	// VertexBuilt is called after an operator produced vertex.
	VertexBuilt(ctx context.Context, step Step, duration time.Duration)

	// VertexSkipped is called when vertex is up to date.
	VertexSkipped(ctx context.Context, vertex string)

	// VertexFailed is called when the operator for vertex failed.
	VertexFailed(ctx context.Context, step Step, duration time.Duration, err error)
}

// Step describes one operator invocation.
type Step struct {
	Vertex string      `json:"vertex"`
	Action ActionKind  `json:"action"`
	Inputs []string    `json:"inputs"`
	Reason StaleReason `json:"reason"`
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) VertexStarted(context.Context, Step) {}
func (NopObserver) VertexBuilt(context.Context, Step, time.Duration) {}
func (NopObserver) VertexSkipped(context.Context, string) {}
func (NopObserver) VertexFailed(context.Context, Step, time.Duration, error) {}
