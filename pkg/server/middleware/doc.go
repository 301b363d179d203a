// Package middleware provides HTTP middleware for cross-cutting concerns.
//
// # Middleware Chain
//
// Global middleware wraps the whole mux:
//
//	handler = Recovery(RequestID(Logging(Tracing(mux))))
//
// Protected routes are additionally wrapped at registration:
//
//	mux.Handle(pattern, Metrics(Timeout(Identity(Admission(handler)))))
//
// Order (outermost to innermost):
//  1. Recovery: Recover from panics, return 500
//  2. RequestID: Assign X-Request-ID and put it in the context
//  3. Logging: Log request/response with method, path, status, latency
//  4. Tracing: Start a server span, continuing propagated traces
//  5. Metrics: Record status and latency under the route pattern
//  6. Timeout: Put a deadline on the request context
//  7. Identity: Require the authenticated user ID header (401 otherwise)
//  8. Admission: Enforce the per-user sliding-window quota (429 otherwise)
//
// Admission runs before the body is read, so a rate-limited client gets 429
// even for a malformed request.
//
// # Rate Limit Headers
//
// Admitted requests carry:
//
//	X-RateLimit-Limit: 10
//	X-RateLimit-Remaining: 7
//
// Denied requests get 429 and additionally:
//
//	Retry-After: 2940
//	X-RateLimit-Reset: 1735689600
//	{"error": "Rate limit exceeded. You can generate 10 times per hour. Try again in 49 minutes."}
//
// # Errors
//
// Every error response is {"error": "<message>"}.
package middleware
