package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"personakit/gate/pkg/config"
)

func newTestModel(t *testing.T, handler http.HandlerFunc) *AnthropicModel {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	m, err := NewAnthropicModel(config.AnthropicConfig{
		BaseURL:   server.URL + "/",
		APIKey:    "sk-ant-test",
		Model:     "claude-test",
		MaxTokens: 512,
		Timeout:   5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewAnthropicModel failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestNewAnthropicModel_RequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropicModel(config.AnthropicConfig{}); err == nil {
		t.Error("Expected error without API key")
	}
}

func TestAnthropicModel_Complete(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Expected path /v1/messages, got %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-ant-test" {
			t.Errorf("Expected x-api-key header, got %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != DefaultAnthropicVersion {
			t.Errorf("Expected anthropic-version %s, got %q", DefaultAnthropicVersion, got)
		}

		var req messagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if req.Model != "claude-test" || req.MaxTokens != 512 {
			t.Errorf("Unexpected model/max_tokens: %s/%d", req.Model, req.MaxTokens)
		}
		if req.System != "sys" {
			t.Errorf("Expected system prompt %q, got %q", "sys", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "hello" {
			t.Errorf("Unexpected messages: %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","model":"claude-test","stop_reason":"end_turn",
			"content":[{"type":"text","text":"{\"a\":"},{"type":"text","text":"1}"}]}`))
	})

	got, err := m.Complete(context.Background(), "sys", "hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != `{"a":1}` {
		t.Errorf("Expected concatenated text, got %q", got)
	}
	if m.Name() != "claude-test" {
		t.Errorf("Expected name claude-test, got %q", m.Name())
	}
}

func TestAnthropicModel_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			header: map[string]string{"Retry-After": "30"},
			body:   `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`,
			check: func(t *testing.T, err error) {
				var rl *RateLimitError
				if !errors.As(err, &rl) {
					t.Fatalf("Expected *RateLimitError, got %T: %v", err, err)
				}
				if rl.RetryAfter != 30*time.Second {
					t.Errorf("Expected retry after 30s, got %v", rl.RetryAfter)
				}
				if rl.Message != "slow down" {
					t.Errorf("Expected message %q, got %q", "slow down", rl.Message)
				}
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `upstream exploded`,
			check: func(t *testing.T, err error) {
				var pe *ProviderError
				if !errors.As(err, &pe) {
					t.Fatalf("Expected *ProviderError, got %T: %v", err, err)
				}
				if pe.StatusCode != http.StatusInternalServerError {
					t.Errorf("Expected status 500, got %d", pe.StatusCode)
				}
				if pe.Message != "upstream exploded" {
					t.Errorf("Expected raw body as message, got %q", pe.Message)
				}
			},
		},
		{
			name:   "no text blocks",
			status: http.StatusOK,
			body:   `{"content":[{"type":"tool_use"}]}`,
			check: func(t *testing.T, err error) {
				var pe *ProviderError
				if !errors.As(err, &pe) {
					t.Fatalf("Expected *ProviderError, got %T: %v", err, err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := m.Complete(context.Background(), "", "hi")
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			tt.check(t, err)
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("Expected 0 for empty header, got %v", got)
	}
	if got := parseRetryAfter("12"); got != 12*time.Second {
		t.Errorf("Expected 12s, got %v", got)
	}
	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(future); got <= 0 || got > time.Minute {
		t.Errorf("Expected positive delay up to 1m, got %v", got)
	}
}
