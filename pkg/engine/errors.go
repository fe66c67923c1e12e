package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind identifies the failure category of an EngineError.
type ErrorKind string

const (
	// ErrorKindGraphIntegrity indicates a malformed build graph: mixed actions
	// producing one vertex, or a compile step with more than one input.
	ErrorKindGraphIntegrity ErrorKind = "graph_integrity"

	// ErrorKindCycleDetected indicates a vertex that transitively depends on itself.
	ErrorKindCycleDetected ErrorKind = "cycle_detected"

	// ErrorKindProcess indicates a toolchain invocation that exited unsuccessfully.
	ErrorKindProcess ErrorKind = "process"

	// ErrorKindToolNotFound indicates a toolchain executable that could not be started.
	ErrorKindToolNotFound ErrorKind = "tool_not_found"

	// ErrorKindMissingDependency indicates package dependencies absent from the local repository.
	ErrorKindMissingDependency ErrorKind = "missing_dependency"

	// ErrorKindAmbiguousOrMissingVersion indicates a dependency folder with no version subfolder.
	ErrorKindAmbiguousOrMissingVersion ErrorKind = "ambiguous_or_missing_version"

	// ErrorKindAlreadyInitialized indicates init was requested on a project that has a graph table.
	ErrorKindAlreadyInitialized ErrorKind = "already_initialized"

	// ErrorKindIO indicates a filesystem failure while reading or writing artifacts or the table.
	ErrorKindIO ErrorKind = "io"
)

// EngineError represents a categorised build error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Kind is the error category.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Vertex is the artifact path involved, if applicable.
	Vertex string `json:"vertex,omitempty"`

	// Action is the build action being performed, if applicable.
	Action string `json:"action,omitempty"`

	// Output holds captured tool output for process failures.
	Output string `json:"output,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Message)
	switch {
	case e.Vertex != "" && e.Action != "":
		fmt.Fprintf(&b, " (vertex=%s, action=%s)", e.Vertex, e.Action)
	case e.Vertex != "":
		fmt.Fprintf(&b, " (vertex=%s)", e.Vertex)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an EngineError of the same kind.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind ErrorKind, message string, err error) *EngineError {
	return &EngineError{Kind: kind, Message: message, Err: err}
}

// NewGraphIntegrityError creates an error for a malformed production group.
func NewGraphIntegrityError(vertex, message string) *EngineError {
	return newError(ErrorKindGraphIntegrity, message, nil).WithVertex(vertex)
}

// NewCycleDetectedError creates an error describing the dependency cycle through path.
// The first and last elements of path are the same vertex.
func NewCycleDetectedError(path []string) *EngineError {
	e := newError(ErrorKindCycleDetected, "dependency cycle: "+strings.Join(path, " -> "), nil)
	if len(path) > 0 {
		e.Vertex = path[0]
	}
	return e.WithDetail("cycle", path)
}

// NewProcessError creates an error for a failed tool invocation. output is the
// combined tool output captured during the run.
func NewProcessError(tool string, output string, err error) *EngineError {
	e := newError(ErrorKindProcess, fmt.Sprintf("%s failed", tool), err)
	e.Output = output
	return e.WithDetail("tool", tool)
}

// NewToolNotFoundError creates an error for a toolchain executable that cannot be run.
func NewToolNotFoundError(tool string, err error) *EngineError {
	return newError(ErrorKindToolNotFound, fmt.Sprintf("tool %q not found", tool), err).
		WithDetail("tool", tool)
}

// NewMissingDependencyError creates an error listing every missing dependency.
func NewMissingDependencyError(missing []string) *EngineError {
	sorted := append([]string(nil), missing...)
	sort.Strings(sorted)
	return newError(ErrorKindMissingDependency,
		"missing dependencies: "+strings.Join(sorted, ", "), nil).
		WithDetail("missing", sorted)
}

// NewAmbiguousOrMissingVersionError creates an error for a dependency without a version folder.
func NewAmbiguousOrMissingVersionError(identifier, dir string) *EngineError {
	return newError(ErrorKindAmbiguousOrMissingVersion,
		fmt.Sprintf("no version folder for dependency %q", identifier), nil).
		WithDetail("identifier", identifier).
		WithDetail("dir", dir)
}

// NewAlreadyInitializedError creates an error for an existing graph table.
func NewAlreadyInitializedError(tablePath string) *EngineError {
	return newError(ErrorKindAlreadyInitialized, "build graph already initialized", nil).
		WithDetail("table", tablePath)
}

// NewIOError wraps a filesystem error.
func NewIOError(message string, err error) *EngineError {
	return newError(ErrorKindIO, message, err)
}

// WithVertex adds vertex context to an error.
func (e *EngineError) WithVertex(vertex string) *EngineError {
	e.Vertex = vertex
	return e
}

// WithAction adds action context to an error.
func (e *EngineError) WithAction(action ActionKind) *EngineError {
	e.Action = action.String()
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// KindOf returns the kind of the first EngineError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsGraphIntegrity returns true if err is a graph integrity error.
func IsGraphIntegrity(err error) bool { return KindOf(err) == ErrorKindGraphIntegrity }

// IsCycleDetected returns true if err is a cycle error.
func IsCycleDetected(err error) bool { return KindOf(err) == ErrorKindCycleDetected }

// IsProcess returns true if err is a failed tool invocation.
func IsProcess(err error) bool { return KindOf(err) == ErrorKindProcess }

// IsToolNotFound returns true if err reports a missing tool.
func IsToolNotFound(err error) bool { return KindOf(err) == ErrorKindToolNotFound }

// IsMissingDependency returns true if err reports missing dependencies.
func IsMissingDependency(err error) bool { return KindOf(err) == ErrorKindMissingDependency }

// IsAmbiguousOrMissingVersion returns true if err reports an unresolvable version.
func IsAmbiguousOrMissingVersion(err error) bool {
	return KindOf(err) == ErrorKindAmbiguousOrMissingVersion
}

// IsAlreadyInitialized returns true if err reports an existing graph table.
func IsAlreadyInitialized(err error) bool { return KindOf(err) == ErrorKindAlreadyInitialized }

// ProcessOutput returns the captured tool output carried by err, if any.
func ProcessOutput(err error) string {
	var e *EngineError
	if errors.As(err, &e) && e.Kind == ErrorKindProcess {
		return e.Output
	}
	return ""
}
