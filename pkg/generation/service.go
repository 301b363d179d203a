package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"personakit/gate/pkg/telemetry/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Recorder receives generation metrics. *metrics.Collector satisfies it.
type Recorder interface {
	RecordGeneration(model, status string, duration time.Duration)
	RecordGenerationRetry(model string)
}

type nopRecorder struct{}

func (nopRecorder) RecordGeneration(string, string, time.Duration) {}
func (nopRecorder) RecordGenerationRetry(string)                   {}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	// Model is required.
	Model Model

	Logger  *slog.Logger
	Metrics Recorder
	Tracer  trace.Tracer

	// Now stamps generations. Default: time.Now.
	Now func() time.Time
}

// Service generates content plans.
type Service struct {
	model   Model
	logger  *slog.Logger
	metrics Recorder
	tracer  trace.Tracer
	now     func() time.Time
}

// NewService creates a generation service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("generation model is required")
	}
	s := &Service{
		model:   cfg.Model,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
		now:     cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "generation")
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("")
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Generate validates req, calls the model and returns the parsed plan
// wrapped in a Generation for userID.
func (s *Service) Generate(ctx context.Context, userID string, req Request) (*Generation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "generation.Generate",
		trace.WithAttributes(tracing.AttrGenerationModel.String(s.model.Name())),
	)
	defer span.End()

	plan, attempts, err := s.completeJSON(ctx, systemPrompt, buildPrompt(&req))
	span.SetAttributes(tracing.AttrGenerationAttempts.Int(attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return nil, err
	}

	return &Generation{
		ID:               uuid.NewString(),
		UserID:           userID,
		PersonaID:        req.PersonaID,
		ProblemStatement: req.ProblemStatement,
		Channels:         req.Channels,
		Stage:            req.Stage,
		Content:          plan,
		CreatedAt:        s.now().UTC(),
	}, nil
}

// completeJSON calls the model and parses its reply, calling it a second
// time if the first reply is unparsable. It reports the number of model
// calls made.
func (s *Service) completeJSON(ctx context.Context, system, user string) (Plan, int, error) {
	name := s.model.Name()

	attempts := 0
	for {
		attempts++
		start := time.Now()
		raw, err := s.model.Complete(ctx, system, user)
		if err != nil {
			s.metrics.RecordGeneration(name, "error", time.Since(start))
			return nil, attempts, fmt.Errorf("model call failed: %w", err)
		}

		plan, perr := parsePlan(raw)
		if perr == nil {
			s.metrics.RecordGeneration(name, "success", time.Since(start))
			return plan, attempts, nil
		}
		s.metrics.RecordGeneration(name, "unparsable", time.Since(start))

		if attempts >= 2 {
			s.logger.ErrorContext(ctx, "model response unparsable after retry",
				"model", name,
				"error", perr,
			)
			return nil, attempts, fmt.Errorf("%w: %w", ErrUnparsableResponse, perr)
		}

		s.logger.WarnContext(ctx, "model response unparsable, retrying",
			"model", name,
			"error", perr,
		)
		s.metrics.RecordGenerationRetry(name)
	}
}

// parsePlan decodes raw as a Plan, falling back to the span from the first
// '{' to the last '}' when the reply carries text around the JSON.
func parsePlan(raw string) (Plan, error) {
	var plan Plan
	err := json.Unmarshal([]byte(raw), &plan)
	if err == nil && plan != nil {
		return plan, nil
	}
	if err == nil {
		err = errors.New("response is not a JSON object")
	}

	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return nil, err
	}
	plan = nil
	if err := json.Unmarshal([]byte(raw[start:end+1]), &plan); err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, errors.New("response is not a JSON object")
	}
	return plan, nil
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
