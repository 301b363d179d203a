package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Admission.FailurePolicy = "closed"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero limit is valid", func(c *Config) { c.Admission.Limit = 0 }, ""},
		{"negative limit", func(c *Config) { c.Admission.Limit = -1 }, "admission.limit"},
		{"zero window", func(c *Config) { c.Admission.Window = 0 }, "admission.window"},
		{"missing failure policy", func(c *Config) { c.Admission.FailurePolicy = "" }, "admission.failure_policy"},
		{"bad failure policy", func(c *Config) { c.Admission.FailurePolicy = "maybe" }, "admission.failure_policy"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }, "storage.backend"},
		{"redis without addr", func(c *Config) { c.Storage.Backend = "redis" }, "storage.redis.addr"},
		{"bad sqlite driver", func(c *Config) {
			c.Storage.Backend = "sqlite"
			c.Storage.SQLite.Driver = "pgx"
		}, "storage.sqlite.driver"},
		{"bad schedule", func(c *Config) { c.Sweep.Schedule = "every so often" }, "sweep.schedule"},
		{"bad schedule ignored when disabled", func(c *Config) {
			c.Sweep.Enabled = false
			c.Sweep.Schedule = "every so often"
		}, ""},
		{"retention shorter than window", func(c *Config) { c.Sweep.Retention = 30 * time.Minute }, "sweep.retention"},
		{"bad log level", func(c *Config) { c.Telemetry.Logging.Level = "verbose" }, "telemetry.logging.level"},
		{"tracing without endpoint", func(c *Config) { c.Telemetry.Tracing.Enabled = true }, "telemetry.tracing.endpoint"},
		{"sample ratio out of range", func(c *Config) { c.Telemetry.Tracing.SampleRatio = 1.5 }, "telemetry.tracing.sample_ratio"},
		{"request timeout over write timeout", func(c *Config) {
			c.Server.RequestTimeout = 10 * time.Minute
		}, "server.request_timeout"},
		{"bad base url", func(c *Config) { c.Generation.Anthropic.BaseURL = "not a url" }, "generation.anthropic.base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Expected valid config, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error on %s, got nil", tt.wantField)
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("Expected error mentioning %s, got %v", tt.wantField, err)
			}
		})
	}
}

func TestValidationError_Format(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if single.Error() != "configuration validation failed: a: bad" {
		t.Errorf("Unexpected single error format: %q", single.Error())
	}

	multi := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}}
	if !strings.Contains(multi.Error(), "2 errors") {
		t.Errorf("Expected count in multi error, got %q", multi.Error())
	}
}
