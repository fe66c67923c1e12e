package engine

import (
	"fmt"
)

// ActionKind is the build action that produces a vertex from its inputs.
type ActionKind int

const (
	// ActionCompile translates a single source file into an object file.
	ActionCompile ActionKind = iota + 1

	// ActionArchive bundles object files into a static library.
	ActionArchive

	// ActionLink combines objects and libraries into an executable.
	ActionLink
)

// AllActions lists every action kind in table order.
var AllActions = []ActionKind{ActionCompile, ActionArchive, ActionLink}

// String returns the table representation of the action.
func (a ActionKind) String() string {
	switch a {
	case ActionCompile:
		return "compile"
	case ActionArchive:
		return "archive"
	case ActionLink:
		return "link"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Validate checks that a is one of the known actions.
func (a ActionKind) Validate() error {
	switch a {
	case ActionCompile, ActionArchive, ActionLink:
		return nil
	default:
		return fmt.Errorf("invalid action: %d", int(a))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a ActionKind) MarshalText() ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *ActionKind) UnmarshalText(text []byte) error {
	parsed, err := ParseActionKind(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseActionKind converts the table representation of an action.
func ParseActionKind(s string) (ActionKind, error) {
	switch s {
	case "compile":
		return ActionCompile, nil
	case "archive":
		return ActionArchive, nil
	case "link":
		return ActionLink, nil
	default:
		return 0, fmt.Errorf("unknown action %q", s)
	}
}

// Edge states that To is produced from From by Action.
// Vertex paths are relative to the graph directory and use forward slashes.
type Edge struct {
	From   string     `json:"from"`
	Action ActionKind `json:"action"`
	To     string     `json:"to"`
}

// String renders the edge as "from -action-> to".
func (e Edge) String() string {
	return fmt.Sprintf("%s -%s-> %s", e.From, e.Action, e.To)
}

// VertexClass partitions vertices by their position in the graph.
type VertexClass string

const (
	// VertexSource is only ever an edge origin. It must already exist.
	VertexSource VertexClass = "source"

	// VertexIntermediate is produced by one edge and consumed by another.
	VertexIntermediate VertexClass = "intermediate"

	// VertexFinal is only ever an edge destination.
	VertexFinal VertexClass = "final"
)

// IsArtifact reports whether vertices of this class are produced by the build.
func (c VertexClass) IsArtifact() bool {
	return c == VertexIntermediate || c == VertexFinal
}
