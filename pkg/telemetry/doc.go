// Package telemetry provides observability for epic builds.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry),
// metrics (Prometheus) and a synchronous event publisher behind a single
// Telemetry value.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	run := tel.BeginRun(ctx, runID, "build", root)
//	// ... build ...
//	run.End("succeeded", executed, skipped, "", nil)
//
// # Metrics
//
// With metrics enabled the following collectors are registered under the
// "epic" namespace:
//
//   - builds_total{command,status}
//   - build_duration_seconds{command,status}
//   - operator_executions_total{action,status}
//   - operator_duration_seconds{action}
//   - vertices_skipped_total
//   - errors_total{kind}
//   - active_builds
//
// The endpoint is only served when MetricsConfig.ListenAddress is set, which
// is mostly useful for the long-running watch command.
//
// # Tracing
//
// Each driver command is a "build.run" span and each operator invocation is
// a "vertex.build" child span. Tracing is disabled by default; enable it with
// the stdout exporter for local debugging or otlp to ship spans to a
// collector.
package telemetry
