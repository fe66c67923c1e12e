package engine

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_CreatesEmptyTable(t *testing.T) {
	table := newProject(t, "proj")

	g, err := Load(table, Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(g.Edges()) != 0 {
		t.Errorf("Expected no edges, got %d", len(g.Edges()))
	}

	data, err := os.ReadFile(table)
	if err != nil {
		t.Fatalf("Table was not created: %v", err)
	}
	if string(data) != "from,action,to\n" {
		t.Errorf("Unexpected table content: %q", data)
	}
}

func TestLoad_MissingParentDirectory(t *testing.T) {
	table := filepath.Join(t.TempDir(), "missing", DefaultTableName)

	_, err := Load(table, Options{})
	if KindOf(err) != ErrorKindIO {
		t.Fatalf("Expected io error, got %v", err)
	}
}

func TestLoad_UnknownAction(t *testing.T) {
	table := newProject(t, "proj")
	content := "from,action,to\na.cpp,preprocess,a.i\n"
	if err := os.WriteFile(table, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write table: %v", err)
	}

	if _, err := Load(table, Options{}); err == nil {
		t.Fatal("Expected error for unknown action")
	}
}

func TestLoadSave_RoundTrip(t *testing.T) {
	table := newProject(t, "proj")
	content := "from,action,to\n" +
		"a.cpp,compile,obj/a.obj\n" +
		"b.cpp,compile,obj/b.obj\n" +
		"obj/a.obj,archive,lib/proj.lib\n" +
		"obj/b.obj,archive,lib/proj.lib\n" +
		"lib/proj.lib,link,bin/proj.exe\n" +
		"\"dir,with,commas/m.obj\",link,bin/proj.exe\n"
	if err := os.WriteFile(table, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write table: %v", err)
	}

	g, err := Load(table, Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(g.Edges()) != 6 {
		t.Fatalf("Expected 6 edges, got %d", len(g.Edges()))
	}
	if err := g.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(table)
	if err != nil {
		t.Fatalf("Failed to read table: %v", err)
	}
	if string(data) != content {
		t.Errorf("Round trip changed the table:\n got: %q\nwant: %q", data, content)
	}

	reloaded, err := Load(table, Options{})
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	before, after := g.Edges(), reloaded.Edges()
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("Edge %d changed: %v != %v", i, before[i], after[i])
		}
	}
}

func TestSave_LeavesNoTemporaryFiles(t *testing.T) {
	table := newProject(t, "proj")
	g := loadGraph(t, table, Options{}, Edge{From: "a.c", Action: ActionCompile, To: "obj/a.obj"})

	if err := g.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(table))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != DefaultTableName {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected only the table, got %v", names)
	}
}

func TestSave_PreservesTableMode(t *testing.T) {
	table := newProject(t, "proj")

	g, err := Load(table, Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if mode := fileMode(t, table); mode != 0o644 {
		t.Errorf("Mode of created table = %v, want -rw-r--r--", mode)
	}

	if err := os.Chmod(table, 0o664); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	g.AddEdge(Edge{From: "a.cpp", Action: ActionCompile, To: "obj/a.obj"})
	if err := g.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if mode := fileMode(t, table); mode != 0o664 {
		t.Errorf("Mode after Save = %v, want -rw-rw-r--", mode)
	}
}

func fileMode(t *testing.T, path string) os.FileMode {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	return info.Mode().Perm()
}

func TestClassification_Partition(t *testing.T) {
	table := newProject(t, "proj")
	g := loadGraph(t, table, Options{},
		Edge{From: "a.cpp", Action: ActionCompile, To: "obj/a.obj"},
		Edge{From: "b.cpp", Action: ActionCompile, To: "obj/b.obj"},
		Edge{From: "obj/a.obj", Action: ActionArchive, To: "lib/proj.lib"},
		Edge{From: "obj/b.obj", Action: ActionArchive, To: "lib/proj.lib"},
		Edge{From: "lib/proj.lib", Action: ActionLink, To: "bin/proj.exe"},
		Edge{From: "main.obj", Action: ActionLink, To: "bin/proj.exe"},
	)

	sources := g.SourceVertices()
	intermediates := g.IntermediateVertices()
	finals := g.FinalVertices()

	if want := []string{"a.cpp", "b.cpp", "main.obj"}; !equalStrings(sources, want) {
		t.Errorf("Sources = %v, want %v", sources, want)
	}
	if want := []string{"obj/a.obj", "obj/b.obj", "lib/proj.lib"}; !equalStrings(intermediates, want) {
		t.Errorf("Intermediates = %v, want %v", intermediates, want)
	}
	if want := []string{"bin/proj.exe"}; !equalStrings(finals, want) {
		t.Errorf("Finals = %v, want %v", finals, want)
	}

	seen := make(map[string]int)
	for _, group := range [][]string{sources, intermediates, finals} {
		for _, v := range group {
			seen[v]++
		}
	}
	for _, v := range g.Vertices() {
		if seen[v] != 1 {
			t.Errorf("Vertex %s appears in %d classes", v, seen[v])
		}
	}
	if len(seen) != len(g.Vertices()) {
		t.Errorf("Partition covers %d vertices, graph has %d", len(seen), len(g.Vertices()))
	}
}

func TestClassification_UpdatesAfterAddEdge(t *testing.T) {
	table := newProject(t, "proj")
	g := loadGraph(t, table, Options{}, Edge{From: "a.c", Action: ActionCompile, To: "obj/a.obj"})

	if got := g.Classify("obj/a.obj"); got != VertexFinal {
		t.Fatalf("Expected final, got %q", got)
	}

	g.AddEdge(Edge{From: "obj/a.obj", Action: ActionArchive, To: "lib/proj.lib"})

	if got := g.Classify("obj/a.obj"); got != VertexIntermediate {
		t.Errorf("Expected intermediate after AddEdge, got %q", got)
	}
	if got := g.Classify("unknown"); got != "" {
		t.Errorf("Expected empty class for unknown vertex, got %q", got)
	}
}

func TestEdgesTo(t *testing.T) {
	table := newProject(t, "proj")
	g := loadGraph(t, table, Options{},
		Edge{From: "obj/a.obj", Action: ActionArchive, To: "lib/proj.lib"},
		Edge{From: "a.c", Action: ActionCompile, To: "obj/a.obj"},
		Edge{From: "obj/b.obj", Action: ActionArchive, To: "lib/proj.lib"},
	)

	group := g.EdgesTo("lib/proj.lib")
	if len(group) != 2 {
		t.Fatalf("Expected 2 edges, got %d", len(group))
	}
	if group[0].From != "obj/a.obj" || group[1].From != "obj/b.obj" {
		t.Errorf("Unexpected group order: %v", group)
	}
	if len(g.EdgesTo("a.c")) != 0 {
		t.Error("Expected no edges into a source vertex")
	}
}

func TestActionKind_Text(t *testing.T) {
	for _, a := range AllActions {
		text, err := a.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) failed: %v", a, err)
		}
		var parsed ActionKind
		if err := parsed.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%s) failed: %v", text, err)
		}
		if parsed != a {
			t.Errorf("Parsed %s as %v", text, parsed)
		}
	}

	if _, err := ActionKind(42).MarshalText(); err == nil {
		t.Error("Expected error marshalling unknown action")
	}
}
