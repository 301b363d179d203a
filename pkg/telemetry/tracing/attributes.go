package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on gate spans.
const (
	AttrAdmissionKey       = attribute.Key("admission.key")
	AttrAdmissionLimit     = attribute.Key("admission.limit")
	AttrAdmissionWindow    = attribute.Key("admission.window_ms")
	AttrAdmissionAllowed   = attribute.Key("admission.allowed")
	AttrAdmissionRemaining = attribute.Key("admission.remaining")
	AttrAdmissionDegraded  = attribute.Key("admission.degraded")

	AttrGenerationModel    = attribute.Key("generation.model")
	AttrGenerationAttempts = attribute.Key("generation.attempts")

	AttrRequestID = attribute.Key("request.id")
	AttrUserID    = attribute.Key("user.id")
)

// SetRequestAttributes records the request id and user id on span.
func SetRequestAttributes(span trace.Span, requestID, userID string) {
	attrs := make([]attribute.KeyValue, 0, 2)
	if requestID != "" {
		attrs = append(attrs, AttrRequestID.String(requestID))
	}
	if userID != "" {
		attrs = append(attrs, AttrUserID.String(userID))
	}
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
}
