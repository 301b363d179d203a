// Package telemetry groups the observability packages of the gate service.
//
//   - logging: slog setup with context fields and credential redaction
//   - metrics: Prometheus collector for admission, HTTP and generation
//   - tracing: OpenTelemetry tracer with an OTLP gRPC exporter
//   - health: liveness and readiness probes
package telemetry
