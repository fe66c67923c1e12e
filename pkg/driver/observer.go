package driver

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/epicbuild/epic/pkg/engine"
	"github.com/epicbuild/epic/pkg/stores"
	"github.com/epicbuild/epic/pkg/telemetry"
)

// buildObserver forwards traversal progress to spans, metrics, events and
// the run history. Traversal is sequential, so at most one span is open.
type buildObserver struct {
	tel *telemetry.Telemetry
	run *runRecorder

	// graph resolves the action of skipped vertices. Set after Load.
	graph *engine.BuildGraph

	span    trace.Span
	started time.Time
}

func newBuildObserver(tel *telemetry.Telemetry, run *runRecorder) *buildObserver {
	return &buildObserver{tel: tel, run: run}
}

func (o *buildObserver) VertexStarted(ctx context.Context, step engine.Step) {
	_, span := o.tel.Tracer.StartVertexSpan(ctx, step.Vertex, step.Action.String(), len(step.Inputs))
	span.SetAttributes(telemetry.AttrReason.String(string(step.Reason)))
	o.span = span
	o.started = time.Now()
}

func (o *buildObserver) VertexBuilt(ctx context.Context, step engine.Step, duration time.Duration) {
	o.endSpan(nil)
	action := step.Action.String()
	o.tel.Metrics.RecordOperatorExecution(action, "success", duration)
	o.tel.Events.PublishVertexBuilt(o.run.id, step.Vertex, action, duration)
	o.run.appendStep(o.record(step, engine.StepStatusBuilt, duration, nil))
}

func (o *buildObserver) VertexSkipped(ctx context.Context, vertex string) {
	action := o.actionOf(vertex)
	o.tel.Metrics.RecordVertexSkipped()
	o.tel.Events.PublishVertexSkipped(o.run.id, vertex, action)
	o.run.appendStep(&stores.Step{
		Vertex:    vertex,
		Action:    action,
		Status:    engine.StepStatusUpToDate,
		StartedAt: time.Now(),
	})
}

func (o *buildObserver) VertexFailed(ctx context.Context, step engine.Step, duration time.Duration, err error) {
	o.endSpan(err)
	action := step.Action.String()
	o.tel.Metrics.RecordOperatorExecution(action, "failure", duration)
	o.tel.Metrics.RecordError(string(engine.KindOf(err)))
	o.tel.Events.PublishVertexFailed(o.run.id, step.Vertex, action, err.Error())
	o.run.appendStep(o.record(step, engine.StepStatusFailed, duration, err))
}

func (o *buildObserver) endSpan(err error) {
	if o.span == nil {
		return
	}
	if err != nil {
		telemetry.RecordError(o.span, err)
	} else {
		telemetry.RecordSuccess(o.span)
	}
	o.span.End()
	o.span = nil
}

func (o *buildObserver) record(step engine.Step, status engine.StepStatus, duration time.Duration, err error) *stores.Step {
	rec := &stores.Step{
		Vertex:    step.Vertex,
		Action:    step.Action.String(),
		Status:    status,
		Reason:    string(step.Reason),
		Inputs:    len(step.Inputs),
		StartedAt: o.started,
		Duration:  duration,
	}
	if err != nil {
		msg := err.Error()
		rec.Error = &msg
	}
	return rec
}

func (o *buildObserver) actionOf(vertex string) string {
	if o.graph == nil {
		return ""
	}
	if edges := o.graph.EdgesTo(vertex); len(edges) > 0 {
		return edges[0].Action.String()
	}
	return ""
}
