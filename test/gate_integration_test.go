//go:build integration

package test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"personakit/gate/internal/anthropictest"
	"personakit/gate/pkg/admission"
	"personakit/gate/pkg/admission/storage"
	"personakit/gate/pkg/config"
	"personakit/gate/pkg/generation"
	"personakit/gate/pkg/server"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const generateBody = `{
	"personaId": "3f1b2c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d",
	"persona": {"name": "Acme", "tone": ["friendly"]},
	"problemStatement": "Small teams waste hours on status meetings",
	"channels": ["linkedin"],
	"stage": "awareness"
}`

const planReply = `{"linkedin":{"awareness":[{"headline":"H","body":"B","cta":"C","format":"post","hashtags":["x"],"posting_tip":"T"}]}}`

// newGate builds a full gate instance backed by the given Redis client and
// model endpoint, and serves it with httptest.
func newGate(t *testing.T, client redis.UniversalClient, modelURL string, policy admission.FailurePolicy, limit int) *httptest.Server {
	t.Helper()

	store, err := storage.NewRedisBackend(storage.RedisBackendConfig{
		Client:     client,
		KeyPrefix:  "itest:",
		TTL:        2 * time.Hour,
		MaxRetries: 10,
	})
	if err != nil {
		t.Fatalf("NewRedisBackend failed: %v", err)
	}

	controller, err := admission.NewController(admission.Config{
		Store:         store,
		FailurePolicy: policy,
	})
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	model, err := generation.NewAnthropicModel(config.AnthropicConfig{
		BaseURL: modelURL,
		APIKey:  "sk-test",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewAnthropicModel failed: %v", err)
	}
	t.Cleanup(func() { model.Close() })

	service, err := generation.NewService(generation.ServiceConfig{Model: model})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	cfg := config.NewDefaultConfig()
	srv, err := server.NewServer(&cfg.Server, server.Dependencies{
		Admitter:  controller,
		Policies:  admission.NewPolicyHolder(admission.Policy{Limit: limit, Window: time.Hour}),
		Generator: service,
		Version:   "integration",
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postGenerate(t *testing.T, baseURL, userID string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		baseURL+"/api/generate-content", strings.NewReader(generateBody))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func newRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// TestSharedQuotaAcrossInstances verifies that two gate instances sharing a
// Redis store enforce one combined window per user.
func TestSharedQuotaAcrossInstances(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	api := anthropictest.NewServer(anthropictest.Reply{Text: planReply})
	defer api.Close()

	_, client := newRedis(t)
	gateA := newGate(t, client, api.URL(), admission.FailClosed, 3)
	gateB := newGate(t, client, api.URL(), admission.FailClosed, 3)

	wantRemaining := []string{"2", "1", "0"}
	for i, gate := range []*httptest.Server{gateA, gateB, gateA} {
		resp := postGenerate(t, gate.URL, "user-1")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Request %d: expected status 200, got %d", i+1, resp.StatusCode)
		}
		if got := resp.Header.Get("X-RateLimit-Remaining"); got != wantRemaining[i] {
			t.Errorf("Request %d: X-RateLimit-Remaining = %q, want %q", i+1, got, wantRemaining[i])
		}
	}

	resp := postGenerate(t, gateB.URL, "user-1")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429 on fourth request, got %d", resp.StatusCode)
	}
	retryAfter, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || retryAfter <= 0 || retryAfter > 3600 {
		t.Errorf("Expected Retry-After within the window, got %q", resp.Header.Get("Retry-After"))
	}

	// Another user has an independent window.
	if resp := postGenerate(t, gateB.URL, "user-2"); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200 for a different user, got %d", resp.StatusCode)
	}

	if got := api.RequestCount(); got != 4 {
		t.Errorf("Expected 4 model calls, got %d", got)
	}
	for _, r := range api.Requests() {
		if r.APIKey != "sk-test" {
			t.Errorf("Expected API key sk-test, got %q", r.APIKey)
		}
		if !strings.Contains(r.User, "Small teams waste hours") {
			t.Errorf("Expected problem statement in prompt, got %q", r.User)
		}
	}
}

// TestStorageOutage verifies both failure policies when Redis goes away.
func TestStorageOutage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	api := anthropictest.NewServer(anthropictest.Reply{Text: planReply})
	defer api.Close()

	tests := []struct {
		name       string
		policy     admission.FailurePolicy
		wantStatus int
		wantModel  int
	}{
		{"fail closed denies", admission.FailClosed, http.StatusTooManyRequests, 0},
		{"fail open admits", admission.FailOpen, http.StatusOK, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr, client := newRedis(t)
			gate := newGate(t, client, api.URL(), tt.policy, 5)

			before := api.RequestCount()
			mr.Close()

			resp := postGenerate(t, gate.URL, "user-1")
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if got := api.RequestCount() - before; got != tt.wantModel {
				t.Errorf("Expected %d model calls, got %d", tt.wantModel, got)
			}
			if tt.policy == admission.FailClosed {
				if got := resp.Header.Get("Retry-After"); got != "3600" {
					t.Errorf("Retry-After = %q, want %q", got, "3600")
				}
			}
		})
	}
}

// TestModelErrorsDoNotRefundQuota verifies that a failed generation still
// counts against the caller's window.
func TestModelErrorsDoNotRefundQuota(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	api := anthropictest.NewServer(anthropictest.Reply{Text: planReply})
	defer api.Close()
	api.Queue(anthropictest.Reply{StatusCode: http.StatusInternalServerError, Text: "overloaded"})

	_, client := newRedis(t)
	gate := newGate(t, client, api.URL(), admission.FailClosed, 1)

	resp := postGenerate(t, gate.URL, "user-1")
	if resp.StatusCode < 500 {
		t.Fatalf("Expected a 5xx status for a model failure, got %d", resp.StatusCode)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	if strings.Contains(body.Error, "overloaded") {
		t.Errorf("Expected upstream message not to leak, got %q", body.Error)
	}

	if resp := postGenerate(t, gate.URL, "user-1"); resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected status 429 after a failed generation, got %d", resp.StatusCode)
	}
}
