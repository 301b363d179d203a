// Package tracing sets up OpenTelemetry tracing for the gate service.
//
// When enabled, spans are batched to an OTLP gRPC collector; when disabled,
// a noop tracer is used so instrumented code needs no conditionals.
//
//	tracer, err := tracing.New(ctx, &cfg.Telemetry.Tracing)
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "admission.check")
//	defer span.End()
//
// Incoming W3C trace context headers are honoured via Extract, so spans
// join traces started by the upstream proxy.
package tracing
