package middleware

import (
	"net/http"
	"time"
)

// HTTPRecorder receives per-request metrics. *metrics.Collector satisfies it.
type HTTPRecorder interface {
	RecordHTTPRequest(route string, status int, duration time.Duration)
}

// MetricsMiddleware records the status and latency of each request under a
// fixed route label. Use the registered pattern as the label so raw paths
// never become label values.
//
// Example usage:
//
//	mux.Handle(pattern, MetricsMiddleware(collector, pattern)(handler))
func MetricsMiddleware(recorder HTTPRecorder, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if recorder == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			recorder.RecordHTTPRequest(route, rw.statusCode, time.Since(start))
		})
	}
}
