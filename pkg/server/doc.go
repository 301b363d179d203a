// Package server provides the HTTP server that fronts content generation
// with per-user admission control.
//
// # Basic Usage
//
//	controller, _ := admission.NewController(admission.Config{
//	    Store:         backend,
//	    FailurePolicy: admission.FailClosed,
//	})
//	policies := admission.NewPolicyHolder(admission.Policy{Limit: 10, Window: time.Hour})
//
//	srv, err := server.NewServer(&cfg.Server, server.Dependencies{
//	    Admitter:  controller,
//	    Policies:  policies,
//	    Generator: service,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Start blocks until the context is cancelled, SIGINT or SIGTERM arrives,
// or Stop is called, then drains in-flight requests for up to
// server.shutdown_timeout.
//
// # Routes
//
//   - POST /api/generate-content - Generate a content plan (admission controlled)
//   - GET /health - Liveness probe
//   - GET /ready - Readiness probe (storage and other registered checks)
//   - GET /version - Build information
//   - GET /metrics - Prometheus metrics, when a metrics handler is supplied
//
// # Middleware Chain
//
// Every request passes through, outermost first:
//  1. Recovery: turns panics into 500
//  2. RequestID: assigns or propagates X-Request-ID
//  3. Logging: one access log line per request
//  4. Tracing: server span with W3C context propagation
//
// The generation route additionally runs, outermost first:
//  1. Metrics: per-route status and latency
//  2. Timeout: request deadline
//  3. Identity: rejects requests without a user ID (401)
//  4. Admission: rejects users over quota (429) before the body is read
//
// # TLS Support
//
// With server.tls.enabled the listener serves TLS 1.3 only using the
// configured certificate and key files.
package server
