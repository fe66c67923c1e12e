package driver

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/epicbuild/epic/pkg/config"
	"github.com/epicbuild/epic/pkg/engine"
	"github.com/epicbuild/epic/pkg/stores"
	"github.com/epicbuild/epic/pkg/telemetry"
)

// recordingOperator writes its inputs to the output and records each call.
type recordingOperator struct {
	name  string
	calls *[]string
	fail  bool
}

func (o recordingOperator) Execute(ctx context.Context, inputs []string, output string) error {
	*o.calls = append(*o.calls, o.name+":"+filepath.Base(output))
	if o.fail {
		return engine.NewProcessError(o.name, "error: boom", errors.New("exit status 1"))
	}
	return os.WriteFile(output, []byte(strings.Join(inputs, "\n")), 0o644)
}

func (o recordingOperator) AssertExists(ctx context.Context) error { return nil }

type testProject struct {
	root  string
	calls []string
	tel   *telemetry.Telemetry
}

// newTestProject creates a project folder named name holding files.
func newTestProject(t *testing.T, name string, files map[string]string) *testProject {
	t.Helper()
	root := filepath.Join(t.TempDir(), name)
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	tel, err := telemetry.NewTelemetryWithWriter(telemetry.DefaultConfig(), io.Discard)
	if err != nil {
		t.Fatalf("telemetry: %v", err)
	}
	return &testProject{root: root, tel: tel}
}

func (p *testProject) driver(t *testing.T, failing ...string) *Driver {
	t.Helper()
	op := func(name string) engine.Operator {
		fail := false
		for _, f := range failing {
			fail = fail || f == name
		}
		return recordingOperator{name: name, calls: &p.calls, fail: fail}
	}
	ops := engine.Operators{Compile: op("compile"), Archive: op("archive"), Link: op("link")}

	d, err := New(context.Background(), Options{
		Root:      p.root,
		Overrides: config.Overrides{LocalRepo: filepath.Join(filepath.Dir(p.root), "repo")},
		Telemetry: p.tel,
		Operators: &ops,
		LookupEnv: func(string) (string, bool) { return "", false },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func (p *testProject) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(p.root, filepath.FromSlash(rel)))
	return err == nil
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestInit(t *testing.T) {
	p := newTestProject(t, "hello", map[string]string{
		"util.cpp":      "",
		"main.cpp":      "",
		"test_util.cpp": "",
		"README.md":     "",
	})
	d := p.driver(t)
	ctx := context.Background()

	report, err := d.Init(ctx)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if report.Edges != 8 {
		t.Errorf("Edges = %d, want 8", report.Edges)
	}
	if strings.Join(report.Created, ",") != "graph.csv,package.json,.gitignore" {
		t.Errorf("Created = %v", report.Created)
	}

	table := readFile(t, d.TablePath())
	for _, row := range []string{
		"from,action,to",
		"util.cpp,compile,obj/util.obj",
		"obj/util.obj,archive,lib/hello.lib",
		"lib/hello.lib,link,bin/hello.exe",
		"obj/main.obj,link,bin/hello.exe",
		"obj/test_util.obj,link,bin/util.exe",
	} {
		if !strings.Contains(table, row+"\n") {
			t.Errorf("table missing row %q:\n%s", row, table)
		}
	}
	if got := readFile(t, filepath.Join(p.root, "package.json")); got != "{}\n" {
		t.Errorf("package.json = %q", got)
	}
	if got := readFile(t, filepath.Join(p.root, ".gitignore")); !strings.Contains(got, "obj/\n") {
		t.Errorf(".gitignore = %q", got)
	}
	if lock, err := acquireLock(p.root); err != nil {
		t.Errorf("lock not released: %v", err)
	} else {
		lock.release()
	}

	if _, err := d.Init(ctx); !engine.IsAlreadyInitialized(err) {
		t.Fatalf("second Init: expected already initialized, got %v", err)
	}
}

func TestInit_KeepsExistingFiles(t *testing.T) {
	manifest := `{"name": "greeter"}`
	p := newTestProject(t, "hello", map[string]string{
		"package.json": manifest,
		"a.c":          "",
	})

	report, err := p.driver(t).Init(context.Background())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if strings.Join(report.Created, ",") != "graph.csv,.gitignore" {
		t.Errorf("Created = %v", report.Created)
	}
	if got := readFile(t, filepath.Join(p.root, "package.json")); got != manifest {
		t.Errorf("package.json overwritten: %q", got)
	}
}

func TestInit_FailureLeavesNoTable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions do not apply to root")
	}
	p := newTestProject(t, "hello", map[string]string{"main.cpp": ""})
	d := p.driver(t)
	ctx := context.Background()

	// Without read permission the sources cannot be listed.
	if err := os.Chmod(p.root, 0o300); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(p.root, 0o755) })

	_, err := d.Init(ctx)
	if engine.KindOf(err) != engine.ErrorKindIO {
		t.Fatalf("expected io error, got %v", err)
	}
	if err := os.Chmod(p.root, 0o755); err != nil {
		t.Fatal(err)
	}
	if p.exists(engine.DefaultTableName) {
		t.Fatal("incomplete graph.csv left behind")
	}

	report, err := d.Init(ctx)
	if err != nil {
		t.Fatalf("retried Init: %v", err)
	}
	if report.Edges != 2 {
		t.Errorf("Edges = %d, want 2", report.Edges)
	}
}

func TestBuild_IncrementalWithHistory(t *testing.T) {
	p := newTestProject(t, "hello", map[string]string{
		"util.cpp":      "",
		"main.cpp":      "",
		"test_util.cpp": "",
	})
	d := p.driver(t)
	ctx := context.Background()

	if _, err := d.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var events []string
	p.tel.Events.Subscribe(func(e telemetry.Event) { events = append(events, e.Type) },
		telemetry.FilterByType(telemetry.EventTypeVertexBuilt, telemetry.EventTypeBuildCompleted))

	first, err := d.Build(ctx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if first.Summary.Executed != 6 || first.Summary.Skipped != 0 {
		t.Errorf("first build summary = %+v", first.Summary)
	}
	if len(p.calls) != 6 {
		t.Errorf("operator calls = %v", p.calls)
	}
	for _, f := range []string{"obj/util.obj", "lib/hello.lib", "bin/hello.exe", "bin/util.exe"} {
		if !p.exists(f) {
			t.Errorf("%s not built", f)
		}
	}
	if len(events) != 7 || events[6] != telemetry.EventTypeBuildCompleted {
		t.Errorf("events = %v", events)
	}

	second, err := d.Build(ctx)
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if second.Summary.Executed != 0 || second.Summary.Skipped != 6 {
		t.Errorf("second build summary = %+v", second.Summary)
	}
	if len(p.calls) != 6 {
		t.Errorf("rebuild invoked operators: %v", p.calls[6:])
	}

	runs, err := d.History(ctx, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs (init + 2 builds), got %d", len(runs))
	}
	if runs[0].ID != second.RunID || runs[2].Command != "init" {
		t.Errorf("unexpected run order: %s %s %s", runs[0].Command, runs[1].Command, runs[2].Command)
	}
	if runs[1].Status != engine.RunStatusSucceeded || runs[1].Executed != 6 {
		t.Errorf("first build run = %+v", runs[1])
	}

	run, steps, err := d.RunDetail(ctx, first.RunID)
	if err != nil {
		t.Fatalf("RunDetail: %v", err)
	}
	if run.BuildConfig != "x64-debug" || len(steps) != 6 {
		t.Fatalf("run %+v has %d steps", run, len(steps))
	}
	for _, s := range steps {
		if s.Status != engine.StepStatusBuilt || s.Reason != string(engine.ReasonMissing) {
			t.Errorf("step %s: status %s reason %s", s.Vertex, s.Status, s.Reason)
		}
	}

	_, steps, err = d.RunDetail(ctx, second.RunID)
	if err != nil {
		t.Fatalf("RunDetail: %v", err)
	}
	for _, s := range steps {
		if s.Status != engine.StepStatusUpToDate || s.Action == "" {
			t.Errorf("step %s: status %s action %q", s.Vertex, s.Status, s.Action)
		}
	}
}

func TestBuild_OperatorFailure(t *testing.T) {
	p := newTestProject(t, "hello", map[string]string{"main.cpp": ""})
	d := p.driver(t, "compile")
	ctx := context.Background()

	if _, err := d.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	report, err := d.Build(ctx)
	if !engine.IsProcess(err) {
		t.Fatalf("expected process error, got %v", err)
	}
	if report.Summary.Failed != 1 || report.Summary.Executed != 0 {
		t.Errorf("summary = %+v", report.Summary)
	}
	if p.exists("bin/hello.exe") {
		t.Error("link should not run after a failed compile")
	}

	run, steps, err := d.RunDetail(ctx, report.RunID)
	if err != nil {
		t.Fatalf("RunDetail: %v", err)
	}
	if run.Status != engine.RunStatusFailed || run.Error == nil {
		t.Errorf("run = %+v", run)
	}
	if len(steps) != 1 || steps[0].Status != engine.StepStatusFailed || steps[0].Error == nil {
		t.Errorf("steps = %+v", steps)
	}
}

// hangingOperator blocks until its context ends.
type hangingOperator struct{}

func (hangingOperator) Execute(ctx context.Context, inputs []string, output string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (hangingOperator) AssertExists(ctx context.Context) error { return nil }

func TestBuild_OperatorTimeoutIsFailure(t *testing.T) {
	p := newTestProject(t, "hello", map[string]string{"main.cpp": ""})
	ctx := context.Background()

	timeout := 50 * time.Millisecond
	ops := engine.Operators{Compile: hangingOperator{}, Archive: hangingOperator{}, Link: hangingOperator{}}
	d, err := New(ctx, Options{
		Root: p.root,
		Overrides: config.Overrides{
			LocalRepo:       filepath.Join(filepath.Dir(p.root), "repo"),
			OperatorTimeout: &timeout,
		},
		Telemetry: p.tel,
		Operators: &ops,
		LookupEnv: func(string) (string, bool) { return "", false },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := d.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	report, err := d.Build(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	run, _, err := d.RunDetail(ctx, report.RunID)
	if err != nil {
		t.Fatalf("RunDetail: %v", err)
	}
	if run.Status != engine.RunStatusFailed {
		t.Errorf("status = %s, want failed", run.Status)
	}
}

func TestBuild_MissingDependencies(t *testing.T) {
	p := newTestProject(t, "hello", map[string]string{
		"package.json": `{"dependencies": {"org.example.zlib": "", "png": ""}}`,
		"main.cpp":     "",
	})
	d := p.driver(t)
	ctx := context.Background()

	if _, err := d.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	_, err := d.Build(ctx)
	if !engine.IsMissingDependency(err) {
		t.Fatalf("expected missing dependency error, got %v", err)
	}
	if !strings.Contains(err.Error(), "png") || !strings.Contains(err.Error(), "org.example.zlib") {
		t.Errorf("error should name every missing dependency: %v", err)
	}
	if len(p.calls) != 0 {
		t.Errorf("operators ran: %v", p.calls)
	}
}

func TestBuild_Locked(t *testing.T) {
	p := newTestProject(t, "hello", map[string]string{"main.cpp": ""})

	held := flock.New(filepath.Join(p.root, LockFileName))
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer held.Unlock()

	_, err = p.driver(t).Build(context.Background())
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if len(p.calls) != 0 {
		t.Errorf("operators ran: %v", p.calls)
	}
}

func TestBuild_LeftoverLockFile(t *testing.T) {
	p := newTestProject(t, "hello", map[string]string{"main.cpp": "", LockFileName: "4242"})
	d := p.driver(t)
	ctx := context.Background()

	if _, err := d.Init(ctx); err != nil {
		t.Fatalf("Init with a leftover lock file: %v", err)
	}
	if _, err := d.Build(ctx); err != nil {
		t.Fatalf("Build with a leftover lock file: %v", err)
	}
}

func TestBuild_NoHistory(t *testing.T) {
	p := newTestProject(t, "hello", map[string]string{"main.cpp": ""})
	ctx := context.Background()

	ops := engine.Operators{
		Compile: recordingOperator{name: "compile", calls: &p.calls},
		Archive: recordingOperator{name: "archive", calls: &p.calls},
		Link:    recordingOperator{name: "link", calls: &p.calls},
	}
	d, err := New(ctx, Options{
		Root:      p.root,
		Overrides: config.Overrides{NoHistory: true},
		Telemetry: p.tel,
		Operators: &ops,
		LookupEnv: func(string) (string, bool) { return "", false },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := d.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := d.Build(ctx); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.exists(".epic/history.db") {
		t.Error("history written with history disabled")
	}
	if _, err := d.History(ctx, 10); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("expected ErrHistoryDisabled, got %v", err)
	}
}

func TestClean(t *testing.T) {
	p := newTestProject(t, "proj", map[string]string{
		"graph.csv":       "from,action,to\nx.cpp,compile,obj/x.obj\nobj/x.obj,link,bin/proj.exe\n",
		"x.cpp":           "",
		"obj/x.obj":       "",
		"bin/proj.exe":    "",
		"docs/readme.txt": "keep",
	})

	report, err := p.driver(t).Clean(context.Background())
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if strings.Join(report.Files, ",") != "obj/x.obj,bin/proj.exe" {
		t.Errorf("Files = %v", report.Files)
	}
	if strings.Join(report.Directories, ",") != "bin,obj" {
		t.Errorf("Directories = %v", report.Directories)
	}
	for _, gone := range []string{"obj", "bin"} {
		if p.exists(gone) {
			t.Errorf("%s should be removed", gone)
		}
	}
	for _, kept := range []string{"docs/readme.txt", "x.cpp", "graph.csv"} {
		if !p.exists(kept) {
			t.Errorf("%s should be kept", kept)
		}
	}
}

func TestClean_DirectoriesOfAbsentArtifacts(t *testing.T) {
	p := newTestProject(t, "proj", map[string]string{
		"graph.csv":          "from,action,to\nx.cpp,compile,out/gen/x.obj\nout/gen/x.obj,link,bin/proj.exe\n",
		"x.cpp":              "",
		"bin/other.txt":      "",
		"out/gen/.gitkeep":   "",
		"out/unrelated/keep": "",
	})
	if err := os.Remove(filepath.Join(p.root, "out", "gen", ".gitkeep")); err != nil {
		t.Fatal(err)
	}

	report, err := p.driver(t).Clean(context.Background())
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if len(report.Files) != 0 {
		t.Errorf("Files = %v", report.Files)
	}
	// out/gen held no artifact but was empty, so it goes too.
	if strings.Join(report.Directories, ",") != "out/gen" {
		t.Errorf("Directories = %v", report.Directories)
	}
	if !p.exists("bin/other.txt") || !p.exists("out/unrelated/keep") {
		t.Error("non-empty directories must be kept")
	}
}

func TestClean_Uninitialized(t *testing.T) {
	p := newTestProject(t, "proj", map[string]string{"x.cpp": ""})

	report, err := p.driver(t).Clean(context.Background())
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if len(report.Files) != 0 || p.exists("graph.csv") {
		t.Error("Clean must not create a graph table")
	}
}

func TestPlanAndValidate(t *testing.T) {
	p := newTestProject(t, "hello", map[string]string{"util.cpp": "", "main.cpp": ""})
	d := p.driver(t)
	ctx := context.Background()

	if _, err := d.Plan(ctx, nil); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := d.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	plan, err := d.Plan(ctx, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Steps) != 4 || len(p.calls) != 0 {
		t.Errorf("plan has %d steps, operator calls %v", len(plan.Steps), p.calls)
	}
	if p.exists("obj") {
		t.Error("Plan must not create output directories")
	}

	report, err := d.Validate(ctx)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if strings.Join(report.Sources, ",") != "main.cpp,util.cpp" || strings.Join(report.Finals, ",") != "bin/hello.exe" {
		t.Errorf("report = %+v", report)
	}
	if len(report.Levels) != 4 {
		t.Errorf("levels = %v", report.Levels)
	}

	var dot strings.Builder
	if err := d.Graph(ctx, &dot); err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if !strings.Contains(dot.String(), "digraph") {
		t.Errorf("not a DOT graph:\n%s", dot.String())
	}
}

func TestValidate_TracedAsOperation(t *testing.T) {
	p := newTestProject(t, "hello", map[string]string{"main.cpp": ""})
	var buf strings.Builder
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"
	tel, err := telemetry.NewTelemetryWithWriter(cfg, &buf)
	if err != nil {
		t.Fatalf("telemetry: %v", err)
	}
	p.tel = tel
	d := p.driver(t)
	ctx := context.Background()

	if _, err := d.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := d.Validate(ctx); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"operation":"epic.validate"`) || !strings.Contains(out, "Operation completed") {
		t.Errorf("validate was not logged as an operation:\n%s", out)
	}
}

func TestValidate_Cycle(t *testing.T) {
	p := newTestProject(t, "proj", map[string]string{
		"graph.csv": "from,action,to\na.obj,link,b.exe\nb.exe,link,a.obj\n",
	})

	if _, err := p.driver(t).Validate(context.Background()); !engine.IsCycleDetected(err) {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestDeps(t *testing.T) {
	p := newTestProject(t, "hello", map[string]string{
		"package.json": `{"dependencies": {"org.example.zlib": "^1.2"}}`,
	})
	repo := filepath.Join(filepath.Dir(p.root), "repo")
	lib := filepath.Join(repo, "org.example.zlib", "1.2.0", "lib", "x64-debug", "zlib.lib")
	if err := os.MkdirAll(filepath.Dir(lib), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(lib, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	deps, err := p.driver(t).Deps(context.Background())
	if err != nil {
		t.Fatalf("Deps: %v", err)
	}
	if len(deps) != 1 {
		t.Fatalf("deps = %+v", deps)
	}
	want := Dependency{
		ID:         "org.example.zlib",
		Constraint: "^1.2",
		Path:       filepath.Join(repo, "org.example.zlib", "1.2.0"),
		Library:    lib,
	}
	if deps[0] != want {
		t.Errorf("dep = %+v, want %+v", deps[0], want)
	}
}

func TestHeader(t *testing.T) {
	p := newTestProject(t, "hello", map[string]string{"a.h": "", "b.h": ""})
	d := p.driver(t)
	d.opts.Now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	path, err := d.Header(context.Background())
	if err != nil {
		t.Fatalf("Header: %v", err)
	}
	got := readFile(t, path)
	if !strings.Contains(got, "Generated 2024/01/02 03:04:05") || !strings.Contains(got, "#include \"b.h\"") {
		t.Errorf("header =\n%s", got)
	}
}

func TestHistory_Empty(t *testing.T) {
	p := newTestProject(t, "hello", nil)
	d := p.driver(t)
	ctx := context.Background()

	runs, err := d.History(ctx, 5)
	if err != nil || len(runs) != 0 {
		t.Fatalf("History() = %v, %v", runs, err)
	}
	if _, _, err := d.RunDetail(ctx, "nope"); !errors.Is(err, stores.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestArtifactDirs(t *testing.T) {
	got := artifactDirs([]string{"obj/x64/a.obj", "bin/app.exe", "obj/x64/b.obj", "top.exe"})
	want := "obj/x64,bin,obj"
	if strings.Join(got, ",") != want {
		t.Errorf("artifactDirs() = %v, want %s", got, want)
	}
}
