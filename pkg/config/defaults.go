package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 120 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRequestTimeout  = 90 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultMaxBodyBytes    = 1048576 // 1MB
	DefaultUserIDHeader    = "X-User-ID"

	// Admission defaults
	DefaultAdmissionLimit     = 10
	DefaultAdmissionWindow    = time.Hour
	DefaultAdmissionKeyPrefix = "generate"

	// Storage defaults
	DefaultStorageBackend           = "memory"
	DefaultMemoryShards             = 64
	DefaultSQLitePath               = "data/admission.db"
	DefaultSQLiteDriver             = "sqlite"
	DefaultSQLiteBusyTimeout        = 5 * time.Second
	DefaultSQLiteCheckpointInterval = 5 * time.Minute
	DefaultRedisKeyPrefix           = "gate:admission:"
	DefaultRedisMaxRetries          = 100
	DefaultRedisDialTimeout         = 5 * time.Second

	// Sweep defaults
	DefaultSweepEnabled  = true
	DefaultSweepSchedule = "@every 5m"

	// Generation defaults
	DefaultAnthropicBaseURL   = "https://api.anthropic.com"
	DefaultAnthropicModel     = "claude-sonnet-4-5"
	DefaultAnthropicMaxTokens = 4096
	DefaultAnthropicTimeout   = 60 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsEnabled   = true
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "gate"
	DefaultMetricsSubsystem = "admission"
	DefaultTracingService   = "gate"
	DefaultTracingSampling  = 1.0
	DefaultTracingTimeout   = 10 * time.Second
)

// NewDefaultConfig returns a configuration populated with defaults.
// The YAML file is decoded on top of it, so keys absent from the file keep
// their default while explicit zero values (limit: 0, enabled: false) stick.
//
// Admission.FailurePolicy is deliberately left empty.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Sweep: SweepConfig{Enabled: DefaultSweepEnabled},
		Admission: AdmissionConfig{
			Limit: DefaultAdmissionLimit,
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in fields whose zero value is never meaningful.
// Fields where zero is a legitimate setting are defaulted only by
// NewDefaultConfig.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Server.UserIDHeader == "" {
		cfg.Server.UserIDHeader = DefaultUserIDHeader
	}

	// Admission defaults
	if cfg.Admission.Window == 0 {
		cfg.Admission.Window = DefaultAdmissionWindow
	}
	if cfg.Admission.KeyPrefix == "" {
		cfg.Admission.KeyPrefix = DefaultAdmissionKeyPrefix
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.Memory.Shards == 0 {
		cfg.Storage.Memory.Shards = DefaultMemoryShards
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Storage.SQLite.Driver == "" {
		cfg.Storage.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Storage.SQLite.CheckpointInterval == 0 {
		cfg.Storage.SQLite.CheckpointInterval = DefaultSQLiteCheckpointInterval
	}
	if cfg.Storage.Redis.KeyPrefix == "" {
		cfg.Storage.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Storage.Redis.MaxRetries == 0 {
		cfg.Storage.Redis.MaxRetries = DefaultRedisMaxRetries
	}
	if cfg.Storage.Redis.DialTimeout == 0 {
		cfg.Storage.Redis.DialTimeout = DefaultRedisDialTimeout
	}

	// Sweep defaults
	if cfg.Sweep.Schedule == "" {
		cfg.Sweep.Schedule = DefaultSweepSchedule
	}

	// Generation defaults
	if cfg.Generation.Anthropic.BaseURL == "" {
		cfg.Generation.Anthropic.BaseURL = DefaultAnthropicBaseURL
	}
	if cfg.Generation.Anthropic.Model == "" {
		cfg.Generation.Anthropic.Model = DefaultAnthropicModel
	}
	if cfg.Generation.Anthropic.MaxTokens == 0 {
		cfg.Generation.Anthropic.MaxTokens = DefaultAnthropicMaxTokens
	}
	if cfg.Generation.Anthropic.Timeout == 0 {
		cfg.Generation.Anthropic.Timeout = DefaultAnthropicTimeout
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Telemetry.Metrics.CheckDurationBuckets) == 0 {
		// Local lookups are sub-millisecond; Redis round trips a few ms.
		cfg.Telemetry.Metrics.CheckDurationBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5}
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampling
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
}

// SweepRetention returns the retention ceiling used by the sweep: the
// configured value, or twice the admission window when unset.
func (c *Config) SweepRetention() time.Duration {
	if c.Sweep.Retention > 0 {
		return c.Sweep.Retention
	}
	if c.Admission.Window > 0 {
		return 2 * c.Admission.Window
	}
	return 2 * DefaultAdmissionWindow
}
