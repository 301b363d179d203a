// Package anthropictest provides a fake Anthropic Messages API for tests.
package anthropictest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Reply is one scripted response of the fake server.
type Reply struct {
	// StatusCode defaults to 200.
	StatusCode int

	// Text is returned as a single text content block on success, or as
	// error.message otherwise.
	Text string

	// Delay is applied before responding.
	Delay time.Duration

	Headers map[string]string
}

// Request is what the server recorded about one call.
type Request struct {
	APIKey  string
	Version string
	Model   string
	System  string
	User    string
}

// Server is a fake Messages API. Replies are served in order; once the
// queue is drained the fallback reply is repeated.
type Server struct {
	server *httptest.Server

	mu       sync.Mutex
	replies  []Reply
	fallback Reply
	requests []Request
}

// NewServer starts a fake server that answers every call with fallback
// until replies are queued.
func NewServer(fallback Reply) *Server {
	s := &Server{fallback: fallback}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", s.handleMessages)
	s.server = httptest.NewServer(mux)
	return s
}

// URL returns the base URL to configure as generation.anthropic.base_url.
func (s *Server) URL() string {
	return s.server.URL
}

// Close shuts the server down.
func (s *Server) Close() {
	s.server.Close()
}

// Queue appends scripted replies.
func (s *Server) Queue(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

// Requests returns a copy of the calls received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestCount returns the number of calls received.
func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type messagesRequest struct {
	Model    string `json:"model"`
	System   string `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	var body messagesRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "malformed JSON body")
		return
	}

	rec := Request{
		APIKey:  r.Header.Get("x-api-key"),
		Version: r.Header.Get("anthropic-version"),
		Model:   body.Model,
		System:  body.System,
	}
	if len(body.Messages) > 0 {
		rec.User = body.Messages[len(body.Messages)-1].Content
	}

	s.mu.Lock()
	s.requests = append(s.requests, rec)
	reply := s.fallback
	if len(s.replies) > 0 {
		reply = s.replies[0]
		s.replies = s.replies[1:]
	}
	s.mu.Unlock()

	if reply.Delay > 0 {
		select {
		case <-time.After(reply.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for k, v := range reply.Headers {
		w.Header().Set(k, v)
	}

	status := reply.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	if status != http.StatusOK {
		errType := "api_error"
		if status == http.StatusTooManyRequests {
			errType = "rate_limit_error"
		}
		writeError(w, status, errType, reply.Text)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":          "msg_test",
		"type":        "message",
		"role":        "assistant",
		"model":       body.Model,
		"stop_reason": "end_turn",
		"content": []map[string]any{
			{"type": "text", "text": reply.Text},
		},
	})
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":  "error",
		"error": map[string]string{"type": errType, "message": message},
	})
}
