package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"personakit/gate/pkg/config"
	"personakit/gate/pkg/telemetry/tracing"
)

const (
	// DefaultAnthropicVersion is the API version to use.
	DefaultAnthropicVersion = "2023-06-01"

	providerAnthropic = "anthropic"

	// maxErrorBody caps how much of an error response is kept.
	maxErrorBody = 4 << 10
)

// Model produces a completion for a system and user message.
type Model interface {
	Complete(ctx context.Context, system, user string) (string, error)

	// Name identifies the model in logs and metrics.
	Name() string
}

// AnthropicModel calls the Anthropic Messages API.
type AnthropicModel struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
}

type messagesRequest struct {
	Model     string           `json:"model"`
	System    string           `json:"system,omitempty"`
	Messages  []messageContent `json:"messages"`
	MaxTokens int              `json:"max_tokens"`
}

type messageContent struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropicModel creates a client from configuration.
func NewAnthropicModel(cfg config.AnthropicConfig) (*AnthropicModel, error) {
	if cfg.APIKey == "" {
		return nil, &ValidationError{Field: "api_key", Message: "API key is required for Anthropic"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = config.DefaultAnthropicBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = config.DefaultAnthropicModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = config.DefaultAnthropicMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = config.DefaultAnthropicTimeout
	}

	m := &AnthropicModel{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}

	slog.Info("Anthropic model initialized",
		"base_url", m.baseURL,
		"model", m.model,
	)
	return m, nil
}

// Name returns the model identifier.
func (m *AnthropicModel) Name() string {
	return m.model
}

// Complete sends one user message and returns the concatenated text blocks
// of the reply.
func (m *AnthropicModel) Complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(messagesRequest{
		Model:     m.model,
		System:    system,
		Messages:  []messageContent{{Role: "user", Content: user}},
		MaxTokens: m.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", m.apiKey)
	req.Header.Set("anthropic-version", DefaultAnthropicVersion)
	req.Header.Set("Content-Type", "application/json")
	tracing.Inject(ctx, req.Header)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: providerAnthropic, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := errorMessage(errBody)
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", &RateLimitError{
				Provider:   providerAnthropic,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				Message:    msg,
			}
		}
		return "", &ProviderError{Provider: providerAnthropic, StatusCode: resp.StatusCode, Message: msg}
	}

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &ProviderError{
			Provider:   providerAnthropic,
			StatusCode: resp.StatusCode,
			Message:    "failed to decode response",
			Cause:      err,
		}
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", &ProviderError{
			Provider:   providerAnthropic,
			StatusCode: resp.StatusCode,
			Message:    "response contained no text content",
		}
	}
	return text.String(), nil
}

// Close releases idle connections.
func (m *AnthropicModel) Close() error {
	m.client.CloseIdleConnections()
	return nil
}

// errorMessage extracts error.message from an API error body, falling back
// to the raw body.
func errorMessage(body []byte) string {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}
