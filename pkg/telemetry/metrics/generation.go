package metrics

import (
	"time"

	"personakit/gate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// GenerationMetrics tracks calls to the generation model.
//
// Metrics:
//   - gate_generation_calls_total: model calls by model and status
//   - gate_generation_latency_seconds: model call latency
//   - gate_generation_retries_total: calls repeated after an unparsable response
type GenerationMetrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
	retries *prometheus.CounterVec
}

// NewGenerationMetrics creates and registers generation metrics with the provided registry.
func NewGenerationMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *GenerationMetrics {
	gm := &GenerationMetrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "generation",
				Name:      "calls_total",
				Help:      "Total number of model calls by status",
			},
			[]string{"model", "status"},
		),

		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "generation",
				Name:      "latency_seconds",
				Help:      "Model call latency in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"model"},
		),

		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "generation",
				Name:      "retries_total",
				Help:      "Model calls repeated because the response was not valid JSON",
			},
			[]string{"model"},
		),
	}

	registry.MustRegister(gm.calls, gm.latency, gm.retries)

	return gm
}

// RecordCall records one model call.
func (gm *GenerationMetrics) RecordCall(model, status string, duration time.Duration) {
	gm.calls.WithLabelValues(model, status).Inc()
	gm.latency.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordRetry records a parse retry.
func (gm *GenerationMetrics) RecordRetry(model string) {
	gm.retries.WithLabelValues(model).Inc()
}
