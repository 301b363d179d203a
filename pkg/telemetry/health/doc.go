// Package health provides liveness and readiness probes.
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("storage", failClosed, store.Ping)
//
//	mux.Handle("GET /health", checker.LivenessHandler())
//	mux.Handle("GET /ready", checker.ReadinessHandler())
//
// Liveness only proves the process answers. Readiness runs every registered
// check concurrently, each bounded by the checker's timeout, and returns 503
// only when a critical check fails.
package health
