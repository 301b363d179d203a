package metrics

import (
	"fmt"
	"sync"
	"time"

	"personakit/gate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector owns every Prometheus metric the service exports and registers
// them on its own registry. A disabled collector accepts every call and
// records nothing.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	admissionMetrics  *AdmissionMetrics
	requestMetrics    *RequestMetrics
	generationMetrics *GenerationMetrics

	// Bounds distinct route labels so unmatched paths cannot grow the series set.
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector with the specified configuration and
// Prometheus registry. If registry is nil a fresh one is created, with the
// Go runtime and process collectors attached.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "gate",
//		Subsystem: "admission",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.CheckDurationBuckets) == 0 {
		cfg.CheckDurationBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5}
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		admissionMetrics:   NewAdmissionMetrics(cfg, registry),
		requestMetrics:     NewRequestMetrics(cfg, registry),
		generationMetrics:  NewGenerationMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(100),
	}
}

// RecordAdmissionCheck records one admission decision.
//
// Parameters:
//   - result: "allowed", "denied", "degraded_allowed" or "degraded_denied"
//   - duration: time spent in the check, storage included
func (c *Collector) RecordAdmissionCheck(result string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.admissionMetrics.RecordCheck(result, duration)
}

// RecordAdmissionStorageError records a storage failure converted by the
// failure policy ("open" or "closed").
func (c *Collector) RecordAdmissionStorageError(policy string) {
	if !c.config.Enabled {
		return
	}
	c.admissionMetrics.RecordStorageError(policy)
}

// RecordSweep records a completed sweep.
func (c *Collector) RecordSweep(deleted int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.admissionMetrics.RecordSweep(deleted, duration)
}

// SetTrackedKeys updates the number of keys with a stored window.
func (c *Collector) SetTrackedKeys(n int) {
	if !c.config.Enabled {
		return
	}
	c.admissionMetrics.SetTrackedKeys(n)
}

// RecordHTTPRequest records a served HTTP request.
//
// Parameters:
//   - route: matched route pattern (e.g., "POST /api/generate-content")
//   - status: HTTP status code
//   - duration: total handling time
func (c *Collector) RecordHTTPRequest(route string, status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	if !c.cardinalityLimiter.Allow(route) {
		route = "other"
	}
	c.requestMetrics.RecordRequest(route, fmt.Sprintf("%d", status), duration)
}

// RecordGeneration records one model call.
//
// Parameters:
//   - model: model identifier
//   - status: "success", "error" or "unparsable"
//   - duration: model latency
func (c *Collector) RecordGeneration(model, status string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.generationMetrics.RecordCall(model, status, duration)
}

// RecordGenerationRetry records a model call repeated because the first
// response could not be parsed.
func (c *Collector) RecordGenerationRetry(model string) {
	if !c.config.Enabled {
		return
	}
	c.generationMetrics.RecordRetry(model)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values accepted.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet may be used: it is already known, or
// there is room for it.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
