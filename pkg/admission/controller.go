package admission

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"personakit/gate/pkg/admission/clock"
	"personakit/gate/pkg/admission/storage"
	"personakit/gate/pkg/telemetry/tracing"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Recorder receives admission metrics. *metrics.Collector satisfies it.
type Recorder interface {
	RecordAdmissionCheck(result string, duration time.Duration)
	RecordAdmissionStorageError(policy string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAdmissionCheck(string, time.Duration) {}
func (nopRecorder) RecordAdmissionStorageError(string)         {}

// Config wires a Controller to its collaborators.
type Config struct {
	// Store holds the per-key windows. Required.
	Store storage.Backend

	// FailurePolicy decides the outcome when Store fails. Required.
	FailurePolicy FailurePolicy

	// Clock defaults to clock.Real.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics defaults to a recorder that drops everything.
	Metrics Recorder

	// Tracer defaults to a no-op tracer.
	Tracer trace.Tracer
}

// Controller implements sliding-window admission on top of a storage
// backend.
type Controller struct {
	store   storage.Backend
	policy  FailurePolicy
	clock   clock.Clock
	logger  *slog.Logger
	metrics Recorder
	tracer  trace.Tracer
}

// NewController creates a controller. Store and FailurePolicy are required.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("admission store is required")
	}
	policy, err := ParseFailurePolicy(string(cfg.FailurePolicy))
	if err != nil {
		return nil, err
	}

	c := &Controller{
		store:   cfg.Store,
		policy:  policy,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
	}
	if c.clock == nil {
		c.clock = clock.Real{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "admission")
	if c.metrics == nil {
		c.metrics = nopRecorder{}
	}
	if c.tracer == nil {
		c.tracer = noop.NewTracerProvider().Tracer("")
	}
	return c, nil
}

// FailurePolicy returns the policy applied on storage failure.
func (c *Controller) FailurePolicy() FailurePolicy {
	return c.policy
}

// Check is CheckAndAdmit with the quota taken from p.
func (c *Controller) Check(ctx context.Context, key string, p Policy) (Decision, error) {
	return c.CheckAndAdmit(ctx, key, p.Limit, p.Window)
}

// CheckAndAdmit decides whether the request identified by key may proceed
// and, if so, records it against the key's window.
//
// The only error it returns is a *CallerError for an empty key, a negative
// limit or a non-positive window. Denials and storage failures are reported
// through the Decision.
func (c *Controller) CheckAndAdmit(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if key == "" {
		return Decision{}, &CallerError{Field: "key", Message: "must not be empty"}
	}
	if err := (Policy{Limit: limit, Window: window}).Validate(); err != nil {
		return Decision{}, err
	}

	ctx, span := c.tracer.Start(ctx, "admission.CheckAndAdmit",
		trace.WithAttributes(
			tracing.AttrAdmissionKey.String(key),
			tracing.AttrAdmissionLimit.Int(limit),
			tracing.AttrAdmissionWindow.Int64(window.Milliseconds()),
		),
	)
	defer span.End()

	start := time.Now()
	now := c.clock.Now()

	var d Decision
	if limit == 0 {
		d = Decision{Allowed: false, Limit: 0, Remaining: 0, ResetAt: now}
	} else {
		var err error
		d, err = c.admit(ctx, key, limit, window, now)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "admission storage failure")
			d = c.degrade(ctx, key, limit, window, now, err)
		}
	}

	span.SetAttributes(
		tracing.AttrAdmissionAllowed.Bool(d.Allowed),
		tracing.AttrAdmissionRemaining.Int(d.Remaining),
		tracing.AttrAdmissionDegraded.Bool(d.Degraded),
	)
	c.metrics.RecordAdmissionCheck(resultLabel(d), time.Since(start))

	if !d.Allowed && !d.Degraded {
		c.logger.DebugContext(ctx, "admission denied",
			"key", key,
			"limit", limit,
			"reset_at", d.ResetAt,
		)
	}
	return d, nil
}

// admit runs the prune/count/append critical section.
func (c *Controller) admit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Decision, error) {
	var d Decision
	err := c.store.Update(ctx, key, func(e *storage.Entry) error {
		e.Prune(now, window)

		if n := len(e.Timestamps); n >= limit {
			resetAt := expiryToFit(e.Timestamps, limit).Add(window)
			d = Decision{
				Allowed:    false,
				Limit:      limit,
				Remaining:  0,
				ResetAt:    resetAt,
				RetryAfter: max(0, resetAt.Sub(now)),
			}
			return nil
		}

		e.Timestamps = append(e.Timestamps, now)
		e.UpdatedAt = now
		d = Decision{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - len(e.Timestamps),
			ResetAt:   now.Add(window),
		}
		return nil
	})
	return d, err
}

// expiryToFit returns the instant whose expiry brings the count below limit.
// With exactly limit entries that is the oldest one; when the limit was
// lowered while entries were live, more than one must age out first.
func expiryToFit(ts []time.Time, limit int) time.Time {
	excess := len(ts) - limit
	if excess == 0 {
		e := storage.Entry{Timestamps: ts}
		return e.Oldest()
	}
	sorted := slices.Clone(ts)
	slices.SortFunc(sorted, func(a, b time.Time) int { return a.Compare(b) })
	return sorted[excess]
}

// degrade converts a storage failure into a decision per the failure policy.
func (c *Controller) degrade(ctx context.Context, key string, limit int, window time.Duration, now time.Time, err error) Decision {
	c.metrics.RecordAdmissionStorageError(string(c.policy))

	if c.policy == FailOpen {
		c.logger.WarnContext(ctx, "admission storage unavailable, failing open",
			"key", key,
			"error", err,
		)
		return Decision{
			Allowed:   true,
			Limit:     limit,
			Remaining: max(0, limit-1),
			ResetAt:   now.Add(window),
			Degraded:  true,
		}
	}

	c.logger.ErrorContext(ctx, "admission storage unavailable, failing closed",
		"key", key,
		"error", err,
	)
	return Decision{
		Allowed:    false,
		Limit:      limit,
		Remaining:  0,
		ResetAt:    now.Add(window),
		RetryAfter: window,
		Degraded:   true,
	}
}
