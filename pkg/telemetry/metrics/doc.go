// Package metrics provides Prometheus metrics collection for the gate service.
//
// # Metrics Categories
//
//   - Admission: decisions by result, check latency, storage failures by
//     failure policy, sweep deletions and tracked keys
//   - HTTP: request count and duration by route
//   - Generation: model calls, latency and parse retries
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	collector.RecordAdmissionCheck("denied", 300*time.Microsecond)
//	collector.RecordAdmissionStorageError("closed")
//
//	mux.Handle("/metrics", collector.Handler())
//
// All metrics live on the collector's own registry, never the global one,
// so tests can build as many collectors as they like.
package metrics
