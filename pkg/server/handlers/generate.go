package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"personakit/gate/pkg/generation"
	"personakit/gate/pkg/server/middleware"
)

// Generator produces content for a validated request. *generation.Service
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, userID string, req generation.Request) (*generation.Generation, error)
}

// GenerateResponse is the success body of POST /api/generate-content.
type GenerateResponse struct {
	Generation *generation.Generation `json:"generation"`
}

// GenerateHandler handles content generation requests.
type GenerateHandler struct {
	generator    Generator
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewGenerateHandler creates a generation handler. maxBodyBytes <= 0
// disables the body size check.
func NewGenerateHandler(generator Generator, maxBodyBytes int64, logger *slog.Logger) *GenerateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerateHandler{
		generator:    generator,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.With("component", "handlers.generate"),
	}
}

// ServeHTTP implements http.Handler.
func (h *GenerateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	body := r.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	var req generation.Request
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	gen, err := h.generator.Generate(ctx, userID, req)
	if err != nil {
		h.writeGenerateError(ctx, w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, GenerateResponse{Generation: gen})
}

func (h *GenerateHandler) writeGenerateError(ctx context.Context, w http.ResponseWriter, err error) {
	var validationErr *generation.ValidationError
	var rateLimitErr *generation.RateLimitError

	switch {
	case errors.As(err, &validationErr):
		middleware.WriteError(w, http.StatusBadRequest, validationErr.Message)

	case errors.Is(err, context.DeadlineExceeded):
		h.logger.ErrorContext(ctx, "generation timed out", "error", err)
		middleware.WriteError(w, http.StatusGatewayTimeout, "Request timeout: the request took too long to complete")

	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
		h.logger.InfoContext(ctx, "generation cancelled by client")

	case errors.As(err, &rateLimitErr):
		h.logger.WarnContext(ctx, "model provider rate limited", "error", err)
		middleware.WriteError(w, http.StatusServiceUnavailable, "Content generation is temporarily unavailable. Please try again shortly.")

	case errors.Is(err, generation.ErrUnparsableResponse):
		h.logger.ErrorContext(ctx, "generation returned unparsable content", "error", err)
		middleware.WriteError(w, http.StatusBadGateway, "Failed to generate content")

	default:
		h.logger.ErrorContext(ctx, "generation failed", "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to generate content")
	}
}
