package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"personakit/gate/pkg/admission/clock"
	"personakit/gate/pkg/admission/storage"

	"github.com/robfig/cron/v3"
)

// SweepRecorder receives sweep metrics. *metrics.Collector satisfies it.
type SweepRecorder interface {
	RecordSweep(deleted int, duration time.Duration)
	SetTrackedKeys(n int)
}

type nopSweepRecorder struct{}

func (nopSweepRecorder) RecordSweep(int, time.Duration) {}
func (nopSweepRecorder) SetTrackedKeys(int)             {}

// DefaultSweepSchedule runs the sweep every five minutes.
const DefaultSweepSchedule = "@every 5m"

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	// Store is swept. Required.
	Store storage.Backend

	// Retention is the age after which an instant can no longer count
	// toward any window. It must be at least the longest window in use.
	Retention time.Duration

	// Schedule is a cron expression. Default: DefaultSweepSchedule.
	Schedule string

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics SweepRecorder
}

// Sweeper removes keys whose windows have emptied. Without it the set of
// keys grows with every identity ever seen.
type Sweeper struct {
	store    storage.Backend
	schedule string
	clock    clock.Clock
	logger   *slog.Logger
	metrics  SweepRecorder

	mu        sync.Mutex
	retention time.Duration
	cron      *cron.Cron
	running   bool
	// done is closed when the current run is stopped.
	done chan struct{}
}

// NewSweeper validates cfg and returns a stopped sweeper.
func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("sweep store is required")
	}
	if cfg.Retention <= 0 {
		return nil, fmt.Errorf("sweep retention must be > 0, got %s", cfg.Retention)
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSweepSchedule
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.Schedule, err)
	}

	s := &Sweeper{
		store:     cfg.Store,
		schedule:  cfg.Schedule,
		retention: cfg.Retention,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "admission.sweeper")
	if s.metrics == nil {
		s.metrics = nopSweepRecorder{}
	}
	return s, nil
}

// Start runs the sweep on schedule until Stop is called or ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper already running")
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.runScheduled(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.cron.Start()
	s.running = true
	done := make(chan struct{})
	s.done = done

	s.logger.Info("admission sweeper started",
		"schedule", s.schedule,
		"retention", s.retention,
	)

	go func() {
		select {
		case <-ctx.Done():
			s.stop(done)
		case <-done:
		}
	}()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.stop(nil)
}

// stop ends the current run. A non-nil run only matches the run it was
// created for, so a stale context cannot stop a later Start.
func (s *Sweeper) stop(run chan struct{}) {
	s.mu.Lock()
	if !s.running || (run != nil && run != s.done) {
		s.mu.Unlock()
		return
	}
	c := s.cron
	s.running = false
	close(s.done)
	s.mu.Unlock()

	<-c.Stop().Done()
	s.logger.Info("admission sweeper stopped")
}

// IsRunning reports whether the schedule is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled sweep, or nil when stopped.
func (s *Sweeper) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil || !s.running {
		return nil
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

// SetRetention changes the retention ceiling used by later sweeps.
func (s *Sweeper) SetRetention(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.retention = d
	s.mu.Unlock()
}

// Retention returns the current retention ceiling.
func (s *Sweeper) Retention() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retention
}

func (s *Sweeper) runScheduled(ctx context.Context) {
	deleted, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("admission sweep failed",
			"deleted", deleted,
			"error", err,
		)
		return
	}
	if deleted > 0 {
		s.logger.Info("admission sweep completed", "deleted", deleted)
	} else {
		s.logger.Debug("admission sweep completed, nothing to delete")
	}
}

// RunOnce sweeps every key once and returns how many were deleted.
//
// Each key goes through Backend.DeleteIfEmpty, the same per-key critical
// section the request path uses, so a key that receives a request while
// being swept is either kept with that request or deleted before it and
// recreated. Per-key failures do not stop the sweep; they are joined into
// the returned error.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	retention := s.Retention()

	keys, err := s.store.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list admission keys: %w", err)
	}

	var (
		deleted int
		errs    []error
	)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ok, err := s.store.DeleteIfEmpty(ctx, key, s.clock.Now(), retention)
		if err != nil {
			errs = append(errs, fmt.Errorf("key %q: %w", key, err))
			continue
		}
		if ok {
			deleted++
		}
	}

	s.metrics.RecordSweep(deleted, time.Since(start))
	if n, err := s.store.Len(ctx); err == nil {
		s.metrics.SetTrackedKeys(n)
	}

	return deleted, errors.Join(errs...)
}
