package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "admission.window").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateAdmission(&cfg.Admission)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateSweep(cfg)...)
	errs = append(errs, validateGeneration(&cfg.Generation)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	if cfg.ReadTimeout < 0 || cfg.WriteTimeout < 0 || cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server",
			Message: "timeouts must not be negative",
		})
	}
	if cfg.WriteTimeout > 0 && cfg.RequestTimeout > cfg.WriteTimeout {
		errs = append(errs, FieldError{
			Field:   "server.request_timeout",
			Message: fmt.Sprintf("request timeout %s exceeds write timeout %s", cfg.RequestTimeout, cfg.WriteTimeout),
		})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_body_bytes",
			Message: "max body bytes must not be negative",
		})
	}
	if cfg.UserIDHeader == "" {
		errs = append(errs, FieldError{
			Field:   "server.user_id_header",
			Message: "user id header is required",
		})
	}
	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{
				Field:   "server.tls.cert_file",
				Message: "cert file is required when TLS is enabled",
			})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{
				Field:   "server.tls.key_file",
				Message: "key file is required when TLS is enabled",
			})
		}
	}

	return errs
}

func validateAdmission(cfg *AdmissionConfig) []FieldError {
	var errs []FieldError

	if cfg.Limit < 0 {
		errs = append(errs, FieldError{
			Field:   "admission.limit",
			Message: fmt.Sprintf("limit must be >= 0, got %d", cfg.Limit),
		})
	}
	if cfg.Window <= 0 {
		errs = append(errs, FieldError{
			Field:   "admission.window",
			Message: fmt.Sprintf("window must be positive, got %s", cfg.Window),
		})
	}

	switch cfg.FailurePolicy {
	case "open", "closed":
	case "":
		errs = append(errs, FieldError{
			Field:   "admission.failure_policy",
			Message: "failure policy is required: must be 'open' or 'closed'",
		})
	default:
		errs = append(errs, FieldError{
			Field:   "admission.failure_policy",
			Message: fmt.Sprintf("invalid failure policy %q: must be 'open' or 'closed'", cfg.FailurePolicy),
		})
	}

	if strings.ContainsAny(cfg.KeyPrefix, " \t\n") {
		errs = append(errs, FieldError{
			Field:   "admission.key_prefix",
			Message: "key prefix must not contain whitespace",
		})
	}

	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
		if cfg.Memory.Shards < 1 {
			errs = append(errs, FieldError{
				Field:   "storage.memory.shards",
				Message: "shards must be at least 1",
			})
		}
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.path",
				Message: "sqlite path is required when backend is sqlite",
			})
		}
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.driver",
				Message: fmt.Sprintf("invalid driver %q: must be 'sqlite' or 'sqlite3'", cfg.SQLite.Driver),
			})
		}
	case "redis":
		if cfg.Redis.Addr == "" {
			errs = append(errs, FieldError{
				Field:   "storage.redis.addr",
				Message: "redis address is required when backend is redis",
			})
		}
		if cfg.Redis.MaxRetries < 1 {
			errs = append(errs, FieldError{
				Field:   "storage.redis.max_retries",
				Message: "max retries must be at least 1",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory', 'sqlite', or 'redis'", cfg.Backend),
		})
	}

	return errs
}

func validateSweep(cfg *Config) []FieldError {
	var errs []FieldError

	if cfg.Sweep.Enabled {
		if _, err := cron.ParseStandard(cfg.Sweep.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "sweep.schedule",
				Message: fmt.Sprintf("invalid schedule %q: %v", cfg.Sweep.Schedule, err),
			})
		}
	}
	if cfg.Sweep.Retention < 0 {
		errs = append(errs, FieldError{
			Field:   "sweep.retention",
			Message: "retention must not be negative",
		})
	} else if cfg.Sweep.Retention > 0 && cfg.Sweep.Retention < cfg.Admission.Window {
		// A shorter ceiling would let the sweep delete timestamps still inside the window.
		errs = append(errs, FieldError{
			Field:   "sweep.retention",
			Message: fmt.Sprintf("retention %s is shorter than admission window %s", cfg.Sweep.Retention, cfg.Admission.Window),
		})
	}

	return errs
}

func validateGeneration(cfg *GenerationConfig) []FieldError {
	var errs []FieldError

	if u, err := url.Parse(cfg.Anthropic.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, FieldError{
			Field:   "generation.anthropic.base_url",
			Message: fmt.Sprintf("invalid base URL %q", cfg.Anthropic.BaseURL),
		})
	}
	if cfg.Anthropic.MaxTokens < 1 {
		errs = append(errs, FieldError{
			Field:   "generation.anthropic.max_tokens",
			Message: "max tokens must be at least 1",
		})
	}
	if cfg.Anthropic.Timeout < 0 {
		errs = append(errs, FieldError{
			Field:   "generation.anthropic.timeout",
			Message: "timeout must not be negative",
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	// Validate logging format
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/'",
		})
	}

	// Validate tracing configuration
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	return errs
}
