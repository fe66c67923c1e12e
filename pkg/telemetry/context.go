package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry combines logging, tracing, metrics, and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return newTelemetry(cfg, logger)
}

// NewTelemetryWithWriter creates a telemetry instance whose logger writes to w.
func NewTelemetryWithWriter(cfg *Config, w io.Writer) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newTelemetry(cfg, NewLoggerWithWriter(cfg.Logging, w))
}

func newTelemetry(cfg *Config, logger *Logger) (*Telemetry, error) {
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  NewEventPublisher(cfg.Events),
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context, or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown flushes and stops the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.Tracer.Shutdown(ctx)
}

// StartMetricsServer starts the metrics HTTP server if one is configured.
func (t *Telemetry) StartMetricsServer(ctx context.Context) error {
	return t.Metrics.StartMetricsServer(ctx)
}

// InstrumentedContext carries the span, logger and timer of one operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation with logging, tracing, and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)
	logger := tel.Logger.WithField("operation", operation)
	if span.SpanContext().IsValid() {
		logger = logger.WithField("trace_id", span.SpanContext().TraceID().String())
	}

	return &InstrumentedContext{
		Ctx:    logger.WithContext(spanCtx),
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the operation, recording success or failure on the span.
func (ic *InstrumentedContext) End(err error) {
	logger := ic.Logger.WithField("duration_ms", ic.Timer.Duration().Milliseconds())
	if err != nil {
		logger.WithError(err).Debug("Operation failed")
	} else {
		logger.Debug("Operation completed")
	}
	if ic.Span == nil {
		return
	}
	if err != nil {
		RecordError(ic.Span, err)
	} else {
		RecordSuccess(ic.Span)
	}
	ic.Span.End()
}

// RunScope tracks one driver command from start to finish.
type RunScope struct {
	Ctx     context.Context
	RunID   string
	Command string
	Logger  *Logger

	tel   *Telemetry
	span  trace.Span
	timer *Timer
}

// BeginRun starts the span, metrics and events of a driver command.
func (t *Telemetry) BeginRun(ctx context.Context, runID, command, root string) *RunScope {
	spanCtx, span := t.Tracer.StartBuildSpan(ctx, runID, command, root)
	logger := t.Logger.WithRunID(runID).WithField("command", command)

	t.Metrics.RecordBuildStarted()
	t.Events.PublishBuildStarted(runID, command, root)

	return &RunScope{
		Ctx:     logger.WithContext(context.WithValue(spanCtx, telemetryContextKey{}, t)),
		RunID:   runID,
		Command: command,
		Logger:  logger,
		tel:     t,
		span:    span,
		timer:   NewTimer(),
	}
}

// End records the outcome of the run. kind is the error kind when err is set.
func (r *RunScope) End(status string, executed, skipped int, kind string, err error) {
	duration := r.timer.Duration()

	if err != nil {
		r.span.SetAttributes(AttrErrorKind.String(kind))
		RecordError(r.span, err)
		r.tel.Metrics.RecordError(kind)
		r.tel.Events.PublishBuildFailed(r.RunID, kind, err.Error())
	} else {
		RecordSuccess(r.span)
		r.tel.Events.PublishBuildCompleted(r.RunID, executed, skipped, duration)
	}
	r.span.End()

	r.tel.Metrics.RecordBuildCompleted(r.Command, status, duration)
}
