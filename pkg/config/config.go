package config

import "time"

// Config is the root configuration structure for the gate service.
// It contains all configuration sections for the different subsystems.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `yaml:"server"`

	// Admission contains the per-user quota applied to generation requests.
	Admission AdmissionConfig `yaml:"admission"`

	// Storage selects and configures the backend holding admission windows.
	Storage StorageConfig `yaml:"storage"`

	// Sweep configures the periodic removal of idle admission windows.
	Sweep SweepConfig `yaml:"sweep"`

	// Generation configures the model that serves admitted requests.
	Generation GenerationConfig `yaml:"generation"`

	// Telemetry contains observability settings (logging, metrics, tracing).
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// ListenAddress is the address the server listens on (e.g., "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// Generation calls are slow, so this must exceed RequestTimeout.
	// Default: 120s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is how long to wait for in-flight requests on shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestTimeout bounds the handling of a single API request.
	// Default: 90s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes in request headers.
	// Default: 1MB
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes caps the size of request bodies.
	// Default: 1MB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// UserIDHeader carries the identity set by the upstream authentication
	// proxy. Requests without it are rejected.
	// Default: "X-User-ID"
	UserIDHeader string `yaml:"user_id_header"`

	// TLS configures TLS termination.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig configures TLS termination on the listener.
type TLSConfig struct {
	// Enabled controls whether the server serves HTTPS.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the path to the PEM certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM private key.
	KeyFile string `yaml:"key_file"`
}

// AdmissionConfig is the quota applied to content generation.
type AdmissionConfig struct {
	// Limit is the number of requests admitted per user per window.
	// Zero denies every request.
	// Default: 10
	Limit int `yaml:"limit"`

	// Window is the sliding window length.
	// Default: 1h
	Window time.Duration `yaml:"window"`

	// FailurePolicy decides what happens when storage is unreachable:
	// "open" admits, "closed" denies. There is no default; the operator
	// must choose.
	FailurePolicy string `yaml:"failure_policy"`

	// KeyPrefix namespaces admission keys (key = prefix + ":" + user id).
	// Default: "generate"
	KeyPrefix string `yaml:"key_prefix"`
}

// StorageConfig selects the admission storage backend.
type StorageConfig struct {
	// Backend is "memory", "sqlite" or "redis".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Memory configures the in-process backend.
	Memory MemoryConfig `yaml:"memory"`

	// SQLite configures the single-node durable backend.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Redis configures the shared backend.
	Redis RedisConfig `yaml:"redis"`
}

// MemoryConfig configures the memory backend.
type MemoryConfig struct {
	// Shards is the number of independently locked partitions.
	// Default: 64
	Shards int `yaml:"shards"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/admission.db"
	Path string `yaml:"path"`

	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// BusyTimeout is how long to wait for database locks.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// CheckpointInterval is how often the WAL is checkpointed.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	// Addr is the Redis address (host:port).
	Addr string `yaml:"addr"`

	// Password for AUTH, if any.
	Password string `yaml:"password"`

	// DB is the logical database number.
	DB int `yaml:"db"`

	// KeyPrefix namespaces stored windows.
	// Default: "gate:admission:"
	KeyPrefix string `yaml:"key_prefix"`

	// MaxRetries bounds optimistic transaction attempts per check.
	// Default: 100
	MaxRetries int `yaml:"max_retries"`

	// DialTimeout bounds connection establishment.
	// Default: 5s
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// SweepConfig configures removal of idle admission windows.
type SweepConfig struct {
	// Enabled turns the scheduled sweep on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression or "@every <duration>".
	// Default: "@every 5m"
	Schedule string `yaml:"schedule"`

	// Retention is the age beyond which timestamps are dropped by the sweep.
	// It must be at least admission.window.
	// Default: 2 x admission.window
	Retention time.Duration `yaml:"retention"`
}

// GenerationConfig configures content generation.
type GenerationConfig struct {
	// Anthropic configures the Messages API client.
	Anthropic AnthropicConfig `yaml:"anthropic"`
}

// AnthropicConfig configures the Anthropic Messages API client.
type AnthropicConfig struct {
	// BaseURL is the API endpoint.
	// Default: "https://api.anthropic.com"
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates requests. Usually supplied through
	// GATE_GENERATION_ANTHROPIC_API_KEY or ANTHROPIC_API_KEY.
	APIKey string `yaml:"api_key"`

	// Model is the model identifier.
	// Default: "claude-sonnet-4-5"
	Model string `yaml:"model"`

	// MaxTokens caps the completion length.
	// Default: 4096
	MaxTokens int `yaml:"max_tokens"`

	// Timeout bounds a single model call.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing configuration
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format: "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes source file and line number in logs.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are recorded and served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the Prometheus metric namespace.
	// Default: "gate"
	Namespace string `yaml:"namespace"`

	// Subsystem is the Prometheus metric subsystem.
	// Default: "admission"
	Subsystem string `yaml:"subsystem"`

	// CheckDurationBuckets are histogram buckets (seconds) for admission checks.
	CheckDurationBuckets []float64 `yaml:"check_duration_buckets"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint (e.g., "localhost:4317").
	Endpoint string `yaml:"endpoint"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "gate"
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of traces sampled (0.0 - 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}
