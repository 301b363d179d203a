package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"personakit/gate/pkg/admission"
	"personakit/gate/pkg/admission/storage"
	"personakit/gate/pkg/cli"
	"personakit/gate/pkg/config"
	"personakit/gate/pkg/generation"
	"personakit/gate/pkg/server"
	"personakit/gate/pkg/telemetry/health"
	"personakit/gate/pkg/telemetry/logging"
	"personakit/gate/pkg/telemetry/metrics"
	"personakit/gate/pkg/telemetry/tracing"
)

// reloadTimeout bounds the storage calls made while applying a reload.
const reloadTimeout = 30 * time.Second

// appOptions overrides pieces of the assembly, for tests.
type appOptions struct {
	// Model replaces the Anthropic client.
	Model generation.Model

	// LogWriter receives log output. Default: os.Stdout.
	LogWriter io.Writer
}

// app holds every long-lived component of a running gate.
type app struct {
	cfg        *config.Config
	logger     *logging.Logger
	collector  *metrics.Collector
	tracer     *tracing.Tracer
	store      storage.Backend
	controller *admission.Controller
	policies   *admission.PolicyHolder
	sweeper    *admission.Sweeper
	health     *health.Checker
	model      generation.Model
	server     *server.Server
}

// newApp wires the components described by cfg. On error everything opened
// so far is closed.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	if opts.LogWriter == nil {
		opts.LogWriter = os.Stdout
	}

	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	a.logger, err = logging.FromConfig(cfg.Telemetry.Logging, opts.LogWriter)
	if err != nil {
		return nil, cli.NewConfigError("", fmt.Errorf("telemetry.logging: %w", err))
	}
	logger := a.logger.Logger

	a.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	a.tracer, err = tracing.New(ctx, &cfg.Telemetry.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	failurePolicy, err := admission.ParseFailurePolicy(cfg.Admission.FailurePolicy)
	if err != nil {
		return nil, cli.NewConfigError("", fmt.Errorf("admission.failure_policy: %w", err))
	}

	a.store, err = storage.Open(cfg.Storage, cfg.SweepRetention())
	if err != nil {
		return nil, fmt.Errorf("failed to open admission storage: %w", err)
	}

	a.controller, err = admission.NewController(admission.Config{
		Store:         a.store,
		FailurePolicy: failurePolicy,
		Logger:        logger,
		Metrics:       a.collector,
		Tracer:        a.tracer.Tracer(),
	})
	if err != nil {
		return nil, err
	}

	a.policies = admission.NewPolicyHolder(admission.Policy{
		Limit:  cfg.Admission.Limit,
		Window: cfg.Admission.Window,
	})

	if cfg.Sweep.Enabled {
		a.sweeper, err = admission.NewSweeper(admission.SweeperConfig{
			Store:     a.store,
			Retention: cfg.SweepRetention(),
			Schedule:  cfg.Sweep.Schedule,
			Logger:    logger,
			Metrics:   a.collector,
		})
		if err != nil {
			return nil, err
		}
	}

	// Under fail-open the service keeps serving without storage, so a
	// storage outage only degrades readiness.
	a.health = health.New(0)
	a.health.RegisterCheck("storage", failurePolicy == admission.FailClosed, a.store.Ping)

	a.model = opts.Model
	if a.model == nil {
		anthropic, err := generation.NewAnthropicModel(cfg.Generation.Anthropic)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize model: %w", err)
		}
		a.model = anthropic
	}

	service, err := generation.NewService(generation.ServiceConfig{
		Model:   a.model,
		Logger:  logger,
		Metrics: a.collector,
		Tracer:  a.tracer.Tracer(),
	})
	if err != nil {
		return nil, err
	}

	deps := server.Dependencies{
		Admitter:  a.controller,
		Policies:  a.policies,
		KeyPrefix: cfg.Admission.KeyPrefix,
		Generator: service,
		Health:    a.health,
		Metrics:   a.collector,
		Tracer:    a.tracer.Tracer(),
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
		Logger:    logger,
	}
	if cfg.Telemetry.Metrics.Enabled {
		deps.MetricsHandler = a.collector.Handler()
		deps.MetricsPath = cfg.Telemetry.Metrics.Path
	}

	a.server, err = server.NewServer(&cfg.Server, deps)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// start launches background work. The HTTP server is started separately
// because it blocks.
func (a *app) start(ctx context.Context) error {
	if a.sweeper != nil {
		if err := a.sweeper.Start(ctx); err != nil {
			return fmt.Errorf("failed to start sweeper: %w", err)
		}
		if next := a.sweeper.NextRun(); next != nil {
			a.logger.Debug("admission sweeper started", "next_run", next)
		}
	}
	return nil
}

// applyConfig applies the parts of a reloaded configuration that can change
// at runtime: the quota, the log level and the sweep retention. Everything
// else needs a restart.
//
// A store that expires keys on its own gets its TTL raised before a longer
// window takes effect and lowered only after a shorter one has. If the TTL
// cannot be raised the new policy is rejected.
func (a *app) applyConfig(next *config.Config) {
	prev := a.cfg
	logger := a.logger.Logger
	retention := next.SweepRetention()

	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()

	expirer, _ := a.store.(storage.Expirer)
	var ttlErr error
	if expirer != nil && retention > expirer.TTL() {
		if ttlErr = expirer.SetTTL(ctx, retention); ttlErr == nil {
			logger.Info("storage ttl updated", "ttl", retention.String())
		}
	}

	policy := admission.Policy{Limit: next.Admission.Limit, Window: next.Admission.Window}
	if err := policy.Validate(); err != nil {
		logger.Error("reloaded admission policy rejected", "error", err)
	} else if policy != a.policies.Load() {
		if ttlErr != nil {
			logger.Error("reloaded admission policy rejected",
				"error", fmt.Errorf("failed to extend storage ttl to %s: %w", retention, ttlErr),
			)
		} else {
			a.policies.Store(policy)
			logger.Info("admission policy updated",
				"limit", policy.Limit,
				"window", policy.Window.String(),
			)
		}
	}

	if next.Telemetry.Logging.Level != prev.Telemetry.Logging.Level {
		if err := a.logger.SetLevel(next.Telemetry.Logging.Level); err != nil {
			logger.Error("reloaded log level rejected", "error", err)
		} else {
			logger.Info("log level updated", "level", next.Telemetry.Logging.Level)
		}
	}

	if ttlErr == nil {
		if a.sweeper != nil && retention != a.sweeper.Retention() {
			a.sweeper.SetRetention(retention)
			logger.Info("sweep retention updated", "retention", retention.String())
		}
		if expirer != nil && retention < expirer.TTL() && retention >= a.policies.Load().Window {
			if err := expirer.SetTTL(ctx, retention); err != nil {
				logger.Warn("failed to lower storage ttl", "error", err)
			} else {
				logger.Info("storage ttl updated", "ttl", retention.String())
			}
		}
	}

	for _, field := range restartOnlyChanges(prev, next) {
		logger.Warn("configuration change requires restart", "field", field)
	}

	a.cfg = next
}

// restartOnlyChanges lists settings that differ between prev and next but
// are only read at startup.
func restartOnlyChanges(prev, next *config.Config) []string {
	var changed []string
	if prev.Server != next.Server {
		changed = append(changed, "server")
	}
	if prev.Admission.FailurePolicy != next.Admission.FailurePolicy {
		changed = append(changed, "admission.failure_policy")
	}
	if prev.Admission.KeyPrefix != next.Admission.KeyPrefix {
		changed = append(changed, "admission.key_prefix")
	}
	if prev.Storage != next.Storage {
		changed = append(changed, "storage")
	}
	if prev.Sweep.Enabled != next.Sweep.Enabled || prev.Sweep.Schedule != next.Sweep.Schedule {
		changed = append(changed, "sweep.schedule")
	}
	if prev.Generation != next.Generation {
		changed = append(changed, "generation")
	}
	return changed
}

// close releases every component that was opened.
func (a *app) close(ctx context.Context) error {
	var errs []error

	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if c, ok := a.model.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("model: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing: %w", err))
		}
	}

	if len(errs) > 0 {
		slog.Error("errors while shutting down", "error", errors.Join(errs...))
	}
	return errors.Join(errs...)
}
