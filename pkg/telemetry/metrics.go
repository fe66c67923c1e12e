package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics provides Prometheus metrics for builds.
type Metrics struct {
	config MetricsConfig

	// Build metrics
	buildsCompleted *prometheus.CounterVec
	buildDuration   *prometheus.HistogramVec

	// Operator metrics
	operatorExecutions *prometheus.CounterVec
	operatorDuration   *prometheus.HistogramVec

	// Vertex metrics
	verticesSkipped prometheus.Counter
	errorsByKind    *prometheus.CounterVec

	activeBuilds prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// No-op instance: every Record method checks for nil collectors.
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		buildsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_total",
				Help:      "Total number of completed builds",
			},
			[]string{"command", "status"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Duration of builds in seconds",
				Buckets:   buckets,
			},
			[]string{"command", "status"},
		),

		operatorExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operator_executions_total",
				Help:      "Total number of operator invocations",
			},
			[]string{"action", "status"},
		),
		operatorDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operator_duration_seconds",
				Help:      "Duration of operator invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"action"},
		),

		verticesSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "vertices_skipped_total",
				Help:      "Total number of artifacts found up to date",
			},
		),
		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of build errors by kind",
			},
			[]string{"kind"},
		),

		activeBuilds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_builds",
				Help:      "Current number of running builds",
			},
		),
	}

	registry.MustRegister(
		m.buildsCompleted,
		m.buildDuration,
		m.operatorExecutions,
		m.operatorDuration,
		m.verticesSkipped,
		m.errorsByKind,
		m.activeBuilds,
	)

	return m, nil
}

// Registry returns the collector registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordBuildStarted marks a build as running.
func (m *Metrics) RecordBuildStarted() {
	if m.activeBuilds == nil {
		return
	}
	m.activeBuilds.Inc()
}

// RecordBuildCompleted records a finished build with its status and duration.
func (m *Metrics) RecordBuildCompleted(command, status string, duration time.Duration) {
	if m.buildsCompleted == nil {
		return
	}
	m.buildsCompleted.WithLabelValues(command, status).Inc()
	m.buildDuration.WithLabelValues(command, status).Observe(duration.Seconds())
	m.activeBuilds.Dec()
}

// RecordOperatorExecution records one operator invocation.
func (m *Metrics) RecordOperatorExecution(action, status string, duration time.Duration) {
	if m.operatorExecutions == nil {
		return
	}
	m.operatorExecutions.WithLabelValues(action, status).Inc()
	m.operatorDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordVertexSkipped counts an up-to-date artifact.
func (m *Metrics) RecordVertexSkipped() {
	if m.verticesSkipped == nil {
		return
	}
	m.verticesSkipped.Inc()
}

// RecordError counts an error by kind.
func (m *Metrics) RecordError(kind string) {
	if m.errorsByKind == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer serves metrics on the configured address until ctx is
// cancelled. It returns immediately when metrics or the address are unset.
func (m *Metrics) StartMetricsServer(ctx context.Context) error {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("address", m.config.ListenAddress).Msg("Metrics server failed")
		}
	}()

	return nil
}
