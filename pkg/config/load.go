package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "GATE_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// An empty path yields the defaults. Environment variables are not consulted;
// use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention GATE_SECTION_FIELD (e.g., GATE_ADMISSION_FAILURE_POLICY).
//
// The loading sequence is:
// 1. Load variables from .env (existing environment variables win)
// 2. Load YAML on top of the defaults
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. With no
// arguments it reads ".env" from the working directory; a missing default
// file is not an error.
func LoadDotEnv(files ...string) error {
	explicit := len(files) > 0
	if !explicit {
		files = []string{".env"}
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if !explicit && errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %q: %w", f, err)
		}
	}
	return nil
}

func loadFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Unparseable values are ignored and the file value is kept.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envString("SERVER_USER_ID_HEADER", &cfg.Server.UserIDHeader)
	envBool("SERVER_TLS_ENABLED", &cfg.Server.TLS.Enabled)
	envString("SERVER_TLS_CERT_FILE", &cfg.Server.TLS.CertFile)
	envString("SERVER_TLS_KEY_FILE", &cfg.Server.TLS.KeyFile)

	// Admission overrides
	envInt("ADMISSION_LIMIT", &cfg.Admission.Limit)
	envDuration("ADMISSION_WINDOW", &cfg.Admission.Window)
	envString("ADMISSION_FAILURE_POLICY", &cfg.Admission.FailurePolicy)
	envString("ADMISSION_KEY_PREFIX", &cfg.Admission.KeyPrefix)

	// Storage overrides
	envString("STORAGE_BACKEND", &cfg.Storage.Backend)
	envInt("STORAGE_MEMORY_SHARDS", &cfg.Storage.Memory.Shards)
	envString("STORAGE_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	envString("STORAGE_SQLITE_DRIVER", &cfg.Storage.SQLite.Driver)
	envString("STORAGE_REDIS_ADDR", &cfg.Storage.Redis.Addr)
	envString("STORAGE_REDIS_PASSWORD", &cfg.Storage.Redis.Password)
	envInt("STORAGE_REDIS_DB", &cfg.Storage.Redis.DB)
	envString("STORAGE_REDIS_KEY_PREFIX", &cfg.Storage.Redis.KeyPrefix)

	// Sweep overrides
	envBool("SWEEP_ENABLED", &cfg.Sweep.Enabled)
	envString("SWEEP_SCHEDULE", &cfg.Sweep.Schedule)
	envDuration("SWEEP_RETENTION", &cfg.Sweep.Retention)

	// Generation overrides. ANTHROPIC_API_KEY is honoured as a fallback.
	if val := os.Getenv("ANTHROPIC_API_KEY"); val != "" && cfg.Generation.Anthropic.APIKey == "" {
		cfg.Generation.Anthropic.APIKey = val
	}
	envString("GENERATION_ANTHROPIC_API_KEY", &cfg.Generation.Anthropic.APIKey)
	envString("GENERATION_ANTHROPIC_BASE_URL", &cfg.Generation.Anthropic.BaseURL)
	envString("GENERATION_ANTHROPIC_MODEL", &cfg.Generation.Anthropic.Model)
	envInt("GENERATION_ANTHROPIC_MAX_TOKENS", &cfg.Generation.Anthropic.MaxTokens)
	envDuration("GENERATION_ANTHROPIC_TIMEOUT", &cfg.Generation.Anthropic.Timeout)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envFloat("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)
	envBool("TELEMETRY_TRACING_INSECURE", &cfg.Telemetry.Tracing.Insecure)
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envFloat(name string, dst *float64) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
