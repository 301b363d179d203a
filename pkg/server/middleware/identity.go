package middleware

import (
	"net/http"
	"strings"

	"personakit/gate/pkg/telemetry/logging"
	"personakit/gate/pkg/telemetry/tracing"

	"go.opentelemetry.io/otel/trace"
)

// maxUserIDLength bounds the identity header.
const maxUserIDLength = 256

// IdentityMiddleware reads the authenticated user ID from header, which the
// upstream authentication proxy sets, and stores it in the context. Requests
// without it are rejected with 401.
//
// Example usage:
//
//	handler = IdentityMiddleware("X-User-ID")(handler)
func IdentityMiddleware(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(header))
			if userID == "" || len(userID) > maxUserIDLength {
				WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			ctx := logging.WithUserID(r.Context(), userID)
			tracing.SetRequestAttributes(trace.SpanFromContext(ctx), "", userID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
