package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{name: "bad exporter", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "zipkin"
		}, wantErr: true},
		{name: "otlp without endpoint", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
		}, wantErr: true},
		{name: "sampling out of range", mutate: func(c *Config) { c.Tracing.SamplingRate = 2 }, wantErr: true},
		{name: "missing service", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggerJSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.NewComponentLogger("graph").WithRunID("r1").WithVertex("obj/a.obj").Debug("built")

	out := buf.String()
	for _, want := range []string{`"component":"graph"`, `"run_id":"r1"`, `"vertex":"obj/a.obj"`, `"message":"built"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %q missing %s", out, want)
		}
	}
}

func TestLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug message written at warn level: %q", buf.String())
	}
	logger.Zerolog().Warn().Msg("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn message missing: %q", buf.String())
	}
}

func TestFromContextWithoutLogger(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("FromContext returned nil")
	}
	// Must not panic.
	logger.Debug("discarded")
}

func TestMetricsRecording(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	m.RecordBuildStarted()
	m.RecordOperatorExecution("compile", "succeeded", 10*time.Millisecond)
	m.RecordOperatorExecution("compile", "succeeded", 20*time.Millisecond)
	m.RecordOperatorExecution("link", "failed", time.Millisecond)
	m.RecordVertexSkipped()
	m.RecordError("")
	m.RecordBuildCompleted("build", "failed", time.Second)

	if got := testutil.ToFloat64(m.operatorExecutions.WithLabelValues("compile", "succeeded")); got != 2 {
		t.Errorf("compile executions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.operatorExecutions.WithLabelValues("link", "failed")); got != 1 {
		t.Errorf("failed links = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.verticesSkipped); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.errorsByKind.WithLabelValues("unknown")); got != 1 {
		t.Errorf("unknown errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.buildsCompleted.WithLabelValues("build", "failed")); got != 1 {
		t.Errorf("failed builds = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.activeBuilds); got != 0 {
		t.Errorf("active builds = %v, want 0", got)
	}
}

func TestMetricsDisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordBuildStarted()
	m.RecordOperatorExecution("compile", "succeeded", time.Second)
	m.RecordVertexSkipped()
	m.RecordError("io")
	m.RecordBuildCompleted("build", "succeeded", time.Second)

	if m.Registry() != nil {
		t.Fatal("disabled metrics should have no registry")
	}
	if err := m.StartMetricsServer(context.Background()); err != nil {
		t.Fatalf("StartMetricsServer: %v", err)
	}
}

func TestEventPublisherOrderAndFilters(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true})

	var all, errs []string
	ep.Subscribe(func(e Event) { all = append(all, e.Type) }, nil)
	ep.Subscribe(func(e Event) { errs = append(errs, e.Type) }, FilterByLevel(EventLevelError))

	ep.PublishBuildStarted("r1", "build", "/p")
	ep.PublishVertexBuilt("r1", "obj/a.obj", "compile", time.Millisecond)
	ep.PublishVertexFailed("r1", "bin/p.exe", "link", "boom")
	ep.PublishBuildFailed("r1", "process", "boom")

	wantAll := []string{EventTypeBuildStarted, EventTypeVertexBuilt, EventTypeVertexFailed, EventTypeBuildFailed}
	if strings.Join(all, ",") != strings.Join(wantAll, ",") {
		t.Errorf("all = %v, want %v", all, wantAll)
	}
	wantErrs := []string{EventTypeVertexFailed, EventTypeBuildFailed}
	if strings.Join(errs, ",") != strings.Join(wantErrs, ",") {
		t.Errorf("errs = %v, want %v", errs, wantErrs)
	}
}

func TestEventPublisherGlobalFilter(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true})
	ep.AddFilter(FilterByRunID("keep"))

	var got []Event
	ep.Subscribe(func(e Event) { got = append(got, e) }, nil)

	ep.PublishVertexSkipped("drop", "a", "compile")
	ep.PublishVertexSkipped("keep", "b", "compile")

	if len(got) != 1 || got[0].Vertex != "b" {
		t.Fatalf("got %+v, want only vertex b", got)
	}
	if got[0].ID == "" || got[0].Timestamp.IsZero() {
		t.Errorf("event ID and timestamp should be filled: %+v", got[0])
	}
}

func TestEventPublisherDisabled(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: false})
	called := false
	ep.Subscribe(func(Event) { called = true }, nil)
	ep.PublishBuildStarted("r1", "build", "/p")
	if called {
		t.Fatal("disabled publisher delivered an event")
	}
}

func TestRunScopeFailure(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Logging.Format = "json"

	tel, err := NewTelemetryWithWriter(cfg, &buf)
	if err != nil {
		t.Fatalf("NewTelemetryWithWriter: %v", err)
	}

	var types []string
	tel.Events.Subscribe(func(e Event) { types = append(types, e.Type) }, nil)

	run := tel.BeginRun(context.Background(), "r9", "build", "/p")
	if FromTelemetryContext(run.Ctx) != tel {
		t.Fatal("run context does not carry telemetry")
	}
	run.End("failed", 1, 0, "process", errors.New("boom"))

	if len(types) != 2 || types[0] != EventTypeBuildStarted || types[1] != EventTypeBuildFailed {
		t.Fatalf("events = %v", types)
	}
	if got := testutil.ToFloat64(tel.Metrics.errorsByKind.WithLabelValues("process")); got != 1 {
		t.Errorf("process errors = %v, want 1", got)
	}
}

func TestStartOperationWithoutTelemetry(t *testing.T) {
	op := StartOperation(context.Background(), "noop")
	if op.Span != nil {
		t.Fatal("span should be nil without telemetry")
	}
	op.End(errors.New("ignored"))
}

func TestStartOperationWithTelemetry(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"
	cfg.Tracing.Enabled = true

	tel, err := NewTelemetryWithWriter(cfg, &buf)
	if err != nil {
		t.Fatalf("NewTelemetryWithWriter: %v", err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	if FromTelemetryContext(ctx) != tel {
		t.Fatal("context does not carry telemetry")
	}

	op := StartOperation(ctx, "epic.plan", AttrCommand.String("plan"))
	if op.Span == nil || TraceID(op.Ctx) == "" {
		t.Fatal("expected a recording span")
	}
	op.End(errors.New("boom"))

	out := buf.String()
	for _, want := range []string{`"operation":"epic.plan"`, `"error":"boom"`, `"message":"Operation failed"`, `"duration_ms"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %s", out, want)
		}
	}
	if err := tel.Tracer.ForceFlush(context.Background()); err != nil {
		t.Errorf("ForceFlush: %v", err)
	}
}

func TestTracerDisabledHasNoTraceID(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: false}, "epic", "test")
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	ctx, span := tr.StartVertexSpan(context.Background(), "obj/a.obj", "compile", 1)
	defer span.End()
	if id := TraceID(ctx); id != "" {
		t.Fatalf("TraceID = %q, want empty", id)
	}
}

func TestTracerNoneExporterRecordsSpans(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: true, Exporter: "none", SamplingRate: 1}, "epic", "test")
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	defer tr.Shutdown(context.Background())

	ctx, span := tr.StartBuildSpan(context.Background(), "r1", "build", "/p")
	defer span.End()
	if TraceID(ctx) == "" {
		t.Fatal("expected a valid trace ID")
	}
}
