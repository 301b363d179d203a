// Package config provides configuration management for the gate service.
//
// This package handles loading, validating, and managing configuration from
// YAML files with .env and environment variable overrides.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Configuration Precedence
//
// Later sources override earlier ones:
//
//  1. Default values (defined in defaults.go)
//  2. Values from the YAML file
//  3. Variables from .env (only those not already in the environment)
//  4. GATE_SECTION_FIELD environment variables, e.g.
//     GATE_ADMISSION_FAILURE_POLICY overrides admission.failure_policy
//  5. Validation (fails fast if invalid)
//
// admission.failure_policy has no default. A deployment must state whether
// requests are admitted or denied while storage is unreachable.
//
// # Live Reload
//
// Watcher observes the configuration file with fsnotify and calls
// ReloadConfig after a debounce interval. Listeners registered with OnReload
// receive the new configuration; the admission quota is updated this way
// without a restart. A reload that fails validation is logged and ignored.
package config
