package metrics

import (
	"time"

	"personakit/gate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// AdmissionMetrics tracks the admission controller and its sweep.
//
// Metrics (with the default namespace and subsystem):
//   - gate_admission_checks_total{result}
//   - gate_admission_check_duration_seconds
//   - gate_admission_storage_errors_total{policy}
//   - gate_admission_sweep_deleted_total
//   - gate_admission_sweep_duration_seconds
//   - gate_admission_tracked_keys
type AdmissionMetrics struct {
	checks        *prometheus.CounterVec
	checkDuration prometheus.Histogram
	storageErrors *prometheus.CounterVec
	sweepDeleted  prometheus.Counter
	sweepDuration prometheus.Histogram
	trackedKeys   prometheus.Gauge
}

// NewAdmissionMetrics creates and registers admission metrics with the provided registry.
func NewAdmissionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AdmissionMetrics {
	am := &AdmissionMetrics{
		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "checks_total",
				Help:      "Total number of admission checks by result",
			},
			[]string{"result"},
		),

		checkDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "check_duration_seconds",
				Help:      "Duration of admission checks in seconds",
				Buckets:   cfg.CheckDurationBuckets,
			},
		),

		storageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "storage_errors_total",
				Help:      "Storage failures converted into a decision by the failure policy",
			},
			[]string{"policy"},
		),

		sweepDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "sweep_deleted_total",
				Help:      "Idle admission windows removed by the sweep",
			},
		),

		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "sweep_duration_seconds",
				Help:      "Duration of sweep runs in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms to ~16s
			},
		),

		trackedKeys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tracked_keys",
				Help:      "Number of keys with a stored admission window after the last sweep",
			},
		),
	}

	registry.MustRegister(
		am.checks,
		am.checkDuration,
		am.storageErrors,
		am.sweepDeleted,
		am.sweepDuration,
		am.trackedKeys,
	)

	return am
}

// RecordCheck records one decision.
func (am *AdmissionMetrics) RecordCheck(result string, duration time.Duration) {
	am.checks.WithLabelValues(result).Inc()
	am.checkDuration.Observe(duration.Seconds())
}

// RecordStorageError records a storage failure handled by policy.
func (am *AdmissionMetrics) RecordStorageError(policy string) {
	am.storageErrors.WithLabelValues(policy).Inc()
}

// RecordSweep records a completed sweep.
func (am *AdmissionMetrics) RecordSweep(deleted int, duration time.Duration) {
	am.sweepDeleted.Add(float64(deleted))
	am.sweepDuration.Observe(duration.Seconds())
}

// SetTrackedKeys sets the tracked key gauge.
func (am *AdmissionMetrics) SetTrackedKeys(n int) {
	am.trackedKeys.Set(float64(n))
}
