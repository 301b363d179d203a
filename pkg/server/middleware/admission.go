package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"personakit/gate/pkg/admission"
)

// Admitter decides whether a request may proceed. *admission.Controller
// satisfies it.
type Admitter interface {
	Check(ctx context.Context, key string, p admission.Policy) (admission.Decision, error)
}

// PolicySource supplies the quota in force. *admission.PolicyHolder
// satisfies it.
type PolicySource interface {
	Load() admission.Policy
}

// AdmissionMiddleware enforces the per-user quota before the wrapped handler
// runs. It must be installed after IdentityMiddleware.
//
// The admission key is keyPrefix + ":" + user ID. On admission it sets
// X-RateLimit-Limit and X-RateLimit-Remaining and calls the next handler.
// On denial it responds 429 with Retry-After, X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset, and an error message telling
// the user how long to wait. An invalid quota is a configuration bug and
// yields 500.
//
// Example:
//
//	holder := admission.NewPolicyHolder(admission.Policy{Limit: 10, Window: time.Hour})
//	handler = AdmissionMiddleware(controller, holder, "generate")(handler)
func AdmissionMiddleware(admitter Admitter, policies PolicySource, keyPrefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			userID := GetUserID(ctx)
			if userID == "" {
				WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			policy := policies.Load()
			decision, err := admitter.Check(ctx, admissionKey(keyPrefix, userID), policy)
			if err != nil {
				slog.ErrorContext(ctx, "admission check rejected arguments",
					"error", err,
					"limit", policy.Limit,
					"window", policy.Window,
				)
				WriteError(w, http.StatusInternalServerError, "Failed to check rate limit")
				return
			}

			setRateLimitHeaders(w, decision)

			if !decision.Allowed {
				retryAfter := ceilSeconds(decision.RetryAfter)
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

				slog.InfoContext(ctx, "request rate limited",
					"limit", decision.Limit,
					"retry_after_s", retryAfter,
					"degraded", decision.Degraded,
				)

				WriteError(w, http.StatusTooManyRequests, fmt.Sprintf(
					"Rate limit exceeded. You can generate %d times per %s. Try again in %d minutes.",
					policy.Limit, describeWindow(policy.Window), int64(math.Ceil(float64(retryAfter)/60)),
				))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func admissionKey(prefix, userID string) string {
	if prefix == "" {
		return userID
	}
	return prefix + ":" + userID
}

func setRateLimitHeaders(w http.ResponseWriter, d admission.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
}

// ceilSeconds rounds d up to whole seconds.
func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}

// describeWindow names common windows ("hour") and falls back to the
// duration string.
func describeWindow(w time.Duration) string {
	switch w {
	case time.Minute:
		return "minute"
	case time.Hour:
		return "hour"
	case 24 * time.Hour:
		return "day"
	default:
		return w.String()
	}
}
