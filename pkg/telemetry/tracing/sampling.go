package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// createSampler returns a parent-based sampler: a span follows its
// parent's decision when there is one, and root spans are sampled by trace
// id hash at the given ratio, so every service in a trace agrees.
func createSampler(ratio float64) (sdktrace.Sampler, error) {
	if ratio < 0 || ratio > 1 {
		return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
	}

	var root sdktrace.Sampler
	switch ratio {
	case 0:
		root = sdktrace.NeverSample()
	case 1:
		root = sdktrace.AlwaysSample()
	default:
		root = sdktrace.TraceIDRatioBased(ratio)
	}

	return sdktrace.ParentBased(root), nil
}
