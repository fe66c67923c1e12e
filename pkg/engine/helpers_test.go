package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// recordingOperator writes the joined input names to the output and records
// every invocation.
type recordingOperator struct {
	name  string
	calls *[]string
	fail  bool
}

func (o recordingOperator) Execute(ctx context.Context, inputs []string, output string) error {
	*o.calls = append(*o.calls, o.name+":"+filepath.Base(output))
	if o.fail {
		_ = os.WriteFile(output, []byte("partial"), 0o644)
		return NewProcessError(o.name, "boom", errors.New("exit status 1"))
	}
	return os.WriteFile(output, []byte(strings.Join(inputs, "\n")), 0o644)
}

func (o recordingOperator) AssertExists(ctx context.Context) error { return nil }

func recordingOperators(calls *[]string) Operators {
	return Operators{
		Compile: recordingOperator{name: "compile", calls: calls},
		Archive: recordingOperator{name: "archive", calls: calls},
		Link:    recordingOperator{name: "link", calls: calls},
	}
}

// newProject creates a project directory named name and returns the path of
// its graph table.
func newProject(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("Failed to create project dir: %v", err)
	}
	return filepath.Join(dir, DefaultTableName)
}

// writeFile creates a file relative to dir with the given modification time.
func writeFile(t *testing.T, dir, rel string, mtime time.Time) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("Failed to create dir for %s: %v", rel, err)
	}
	if err := os.WriteFile(p, []byte(rel), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", rel, err)
	}
	if err := os.Chtimes(p, mtime, mtime); err != nil {
		t.Fatalf("Failed to set mtime on %s: %v", rel, err)
	}
}

func setMtime(t *testing.T, dir, rel string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(filepath.Join(dir, filepath.FromSlash(rel)), mtime, mtime); err != nil {
		t.Fatalf("Failed to set mtime on %s: %v", rel, err)
	}
}

func loadGraph(t *testing.T, table string, opts Options, edges ...Edge) *BuildGraph {
	t.Helper()
	g, err := Load(table, opts)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for _, e := range edges {
		g.AddEdge(e)
	}
	return g
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
