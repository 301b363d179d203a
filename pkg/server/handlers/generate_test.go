package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"personakit/gate/pkg/generation"
	"personakit/gate/pkg/telemetry/logging"
)

type fakeGenerator struct {
	gen   *generation.Generation
	err   error
	calls int
	req   generation.Request
	user  string
}

func (f *fakeGenerator) Generate(ctx context.Context, userID string, req generation.Request) (*generation.Generation, error) {
	f.calls++
	f.user = userID
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return f.gen, nil
}

func newRequest(body string, userID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/generate-content", strings.NewReader(body))
	if userID != "" {
		req = req.WithContext(logging.WithUserID(req.Context(), userID))
	}
	return req
}

func TestGenerateHandler_Success(t *testing.T) {
	gen := &fakeGenerator{gen: &generation.Generation{
		ID:        "gen-1",
		UserID:    "user-42",
		Stage:     "awareness",
		Content:   generation.Plan{"LinkedIn": {}},
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}}
	h := NewGenerateHandler(gen, 1<<20, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, newRequest(`{"personaId":"p","problemStatement":"x","channels":["LinkedIn"],"stage":"awareness"}`, "user-42"))

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if gen.user != "user-42" {
		t.Errorf("Expected user-42 passed to generator, got %q", gen.user)
	}
	if gen.req.Stage != "awareness" || len(gen.req.Channels) != 1 {
		t.Errorf("Request not decoded: %+v", gen.req)
	}

	var resp GenerateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Generation == nil || resp.Generation.ID != "gen-1" {
		t.Errorf("Unexpected response %+v", resp)
	}
}

func TestGenerateHandler_RequestErrors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		userID     string
		wantStatus int
	}{
		{"wrong method", http.MethodGet, "", "user-42", http.StatusMethodNotAllowed},
		{"no user", http.MethodPost, "{}", "", http.StatusUnauthorized},
		{"invalid json", http.MethodPost, "{not json", "user-42", http.StatusBadRequest},
		{"body too large", http.MethodPost, `{"problemStatement":"` + strings.Repeat("a", 200) + `"}`, "user-42", http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{}
			h := NewGenerateHandler(gen, 64, nil)

			req := newRequest(tt.body, tt.userID)
			req.Method = tt.method
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			if gen.calls != 0 {
				t.Errorf("Expected generator not called, got %d calls", gen.calls)
			}
		})
	}
}

func TestGenerateHandler_GenerationErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "validation",
			err:         &generation.ValidationError{Field: "stage", Message: "Invalid stage"},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Invalid stage",
		},
		{
			name:       "deadline",
			err:        fmt.Errorf("model call failed: %w", context.DeadlineExceeded),
			wantStatus: http.StatusGatewayTimeout,
		},
		{
			name:       "provider rate limited",
			err:        fmt.Errorf("model call failed: %w", &generation.RateLimitError{Provider: "anthropic"}),
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:        "unparsable",
			err:         fmt.Errorf("%w: bad json", generation.ErrUnparsableResponse),
			wantStatus:  http.StatusBadGateway,
			wantMessage: "Failed to generate content",
		},
		{
			name:        "other",
			err:         errors.New("secret internal detail"),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Failed to generate content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewGenerateHandler(&fakeGenerator{err: tt.err}, 0, nil)

			w := httptest.NewRecorder()
			h.ServeHTTP(w, newRequest("{}", "user-42"))

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("Failed to decode body: %v", err)
			}
			if tt.wantMessage != "" && body.Error != tt.wantMessage {
				t.Errorf("Error = %q, want %q", body.Error, tt.wantMessage)
			}
			if strings.Contains(body.Error, "secret") {
				t.Errorf("Internal error leaked: %q", body.Error)
			}
		})
	}
}

func TestGenerateHandler_ClientCancelWritesNothing(t *testing.T) {
	h := NewGenerateHandler(&fakeGenerator{err: context.Canceled}, 0, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, newRequest("{}", "user-42"))

	if w.Body.Len() != 0 {
		t.Errorf("Expected empty body on cancel, got %s", w.Body.String())
	}
}
