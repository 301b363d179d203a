package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"personakit/gate/pkg/admission"
	"personakit/gate/pkg/admission/clock"
	"personakit/gate/pkg/admission/storage"
)

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// keyRecorder captures the keys an Admitter is asked about.
type keyRecorder struct {
	Admitter
	keys []string
}

func (k *keyRecorder) Check(ctx context.Context, key string, p admission.Policy) (admission.Decision, error) {
	k.keys = append(k.keys, key)
	return k.Admitter.Check(ctx, key, p)
}

func newAdmissionChain(t *testing.T, clk clock.Clock, limit int, window time.Duration) (http.Handler, *atomic.Int32) {
	t.Helper()

	controller, err := admission.NewController(admission.Config{
		Store:         storage.NewMemoryBackend(),
		FailurePolicy: admission.FailClosed,
		Clock:         clk,
	})
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	})

	policies := admission.NewPolicyHolder(admission.Policy{Limit: limit, Window: window})
	chain := IdentityMiddleware("X-User-ID")(AdmissionMiddleware(controller, policies, "generate")(handler))
	return chain, &calls
}

func doRequest(h http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/generate-content", strings.NewReader("{}"))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAdmissionMiddleware(t *testing.T) {
	t.Run("admits under the limit and sets headers", func(t *testing.T) {
		clk := clock.NewManual(testEpoch)
		chain, calls := newAdmissionChain(t, clk, 3, time.Hour)

		for i := 0; i < 3; i++ {
			w := doRequest(chain, "user-42")
			if w.Code != http.StatusOK {
				t.Fatalf("Request %d: status = %d, want 200", i+1, w.Code)
			}
			if got := w.Header().Get("X-RateLimit-Limit"); got != "3" {
				t.Errorf("X-RateLimit-Limit = %q, want 3", got)
			}
			want := strconv.Itoa(2 - i)
			if got := w.Header().Get("X-RateLimit-Remaining"); got != want {
				t.Errorf("X-RateLimit-Remaining = %q, want %s", got, want)
			}
		}
		if calls.Load() != 3 {
			t.Errorf("Expected handler called 3 times, got %d", calls.Load())
		}
	})

	t.Run("denies over the limit without calling the handler", func(t *testing.T) {
		clk := clock.NewManual(testEpoch)
		chain, calls := newAdmissionChain(t, clk, 2, time.Hour)

		doRequest(chain, "user-42")
		clk.Advance(10 * time.Minute)
		doRequest(chain, "user-42")
		clk.Advance(5 * time.Minute)

		w := doRequest(chain, "user-42")
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("Status = %d, want 429", w.Code)
		}
		if calls.Load() != 2 {
			t.Errorf("Expected handler called 2 times, got %d", calls.Load())
		}

		// Oldest admission at epoch frees up at epoch+1h, 45 minutes from now.
		if got := w.Header().Get("Retry-After"); got != "2700" {
			t.Errorf("Retry-After = %q, want 2700", got)
		}
		if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
			t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
		}
		wantReset := strconv.FormatInt(testEpoch.Add(time.Hour).Unix(), 10)
		if got := w.Header().Get("X-RateLimit-Reset"); got != wantReset {
			t.Errorf("X-RateLimit-Reset = %q, want %s", got, wantReset)
		}

		var body ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		want := "Rate limit exceeded. You can generate 2 times per hour. Try again in 45 minutes."
		if body.Error != want {
			t.Errorf("Error = %q, want %q", body.Error, want)
		}
	})

	t.Run("rounds partial minutes up", func(t *testing.T) {
		clk := clock.NewManual(testEpoch)
		chain, _ := newAdmissionChain(t, clk, 1, time.Hour)

		doRequest(chain, "user-42")
		clk.Advance(59*time.Minute + 30*time.Second)

		w := doRequest(chain, "user-42")
		if got := w.Header().Get("Retry-After"); got != "30" {
			t.Errorf("Retry-After = %q, want 30", got)
		}
		if !strings.Contains(w.Body.String(), "Try again in 1 minutes.") {
			t.Errorf("Expected one minute wait in body, got %s", w.Body.String())
		}
	})

	t.Run("users have independent quotas", func(t *testing.T) {
		clk := clock.NewManual(testEpoch)
		chain, _ := newAdmissionChain(t, clk, 1, time.Hour)

		if w := doRequest(chain, "alice"); w.Code != http.StatusOK {
			t.Errorf("alice: status = %d, want 200", w.Code)
		}
		if w := doRequest(chain, "bob"); w.Code != http.StatusOK {
			t.Errorf("bob: status = %d, want 200", w.Code)
		}
		if w := doRequest(chain, "alice"); w.Code != http.StatusTooManyRequests {
			t.Errorf("alice again: status = %d, want 429", w.Code)
		}
	})

	t.Run("rejects invalid quota with 500", func(t *testing.T) {
		controller, err := admission.NewController(admission.Config{
			Store:         storage.NewMemoryBackend(),
			FailurePolicy: admission.FailOpen,
		})
		if err != nil {
			t.Fatalf("NewController failed: %v", err)
		}
		policies := admission.NewPolicyHolder(admission.Policy{Limit: 1, Window: 0})
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("Handler should not be called")
		})
		chain := IdentityMiddleware("X-User-ID")(AdmissionMiddleware(controller, policies, "generate")(handler))

		w := doRequest(chain, "user-42")
		if w.Code != http.StatusInternalServerError {
			t.Errorf("Status = %d, want 500", w.Code)
		}
	})

	t.Run("requires identity", func(t *testing.T) {
		controller, _ := admission.NewController(admission.Config{
			Store:         storage.NewMemoryBackend(),
			FailurePolicy: admission.FailClosed,
		})
		policies := admission.NewPolicyHolder(admission.Policy{Limit: 1, Window: time.Hour})
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("Handler should not be called")
		})

		// No IdentityMiddleware in front.
		w := doRequest(AdmissionMiddleware(controller, policies, "generate")(handler), "user-42")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Status = %d, want 401", w.Code)
		}
	})

	t.Run("namespaces keys with the prefix", func(t *testing.T) {
		controller, _ := admission.NewController(admission.Config{
			Store:         storage.NewMemoryBackend(),
			FailurePolicy: admission.FailClosed,
		})
		rec := &keyRecorder{Admitter: controller}
		policies := admission.NewPolicyHolder(admission.Policy{Limit: 5, Window: time.Hour})
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

		doRequest(IdentityMiddleware("X-User-ID")(AdmissionMiddleware(rec, policies, "generate")(handler)), "user-42")
		doRequest(IdentityMiddleware("X-User-ID")(AdmissionMiddleware(rec, policies, "")(handler)), "user-42")

		if len(rec.keys) != 2 || rec.keys[0] != "generate:user-42" || rec.keys[1] != "user-42" {
			t.Errorf("Expected [generate:user-42 user-42], got %v", rec.keys)
		}
	})

	t.Run("picks up policy changes", func(t *testing.T) {
		clk := clock.NewManual(testEpoch)
		controller, _ := admission.NewController(admission.Config{
			Store:         storage.NewMemoryBackend(),
			FailurePolicy: admission.FailClosed,
			Clock:         clk,
		})
		policies := admission.NewPolicyHolder(admission.Policy{Limit: 1, Window: time.Hour})
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
		chain := IdentityMiddleware("X-User-ID")(AdmissionMiddleware(controller, policies, "generate")(handler))

		doRequest(chain, "user-42")
		if w := doRequest(chain, "user-42"); w.Code != http.StatusTooManyRequests {
			t.Fatalf("Status = %d, want 429", w.Code)
		}

		policies.Store(admission.Policy{Limit: 2, Window: time.Hour})
		if w := doRequest(chain, "user-42"); w.Code != http.StatusOK {
			t.Errorf("Status after raising limit = %d, want 200", w.Code)
		}
	})
}

func TestCeilSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int64
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Hour, 3600},
	}

	for _, tt := range tests {
		if got := ceilSeconds(tt.in); got != tt.want {
			t.Errorf("ceilSeconds(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDescribeWindow(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{time.Minute, "minute"},
		{time.Hour, "hour"},
		{24 * time.Hour, "day"},
		{90 * time.Minute, "1h30m0s"},
	}

	for _, tt := range tests {
		if got := describeWindow(tt.in); got != tt.want {
			t.Errorf("describeWindow(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
