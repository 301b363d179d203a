package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"personakit/gate/pkg/config"
)

// Open creates the backend selected by cfg.Backend.
//
// retention is the age after which no window can still count an instant;
// the Redis backend uses it as the key TTL.
//
// Supported backends:
//   - "memory": per-process, best-effort
//   - "sqlite": durable, single node
//   - "redis":  shared across instances
//
// Example:
//
//	backend, err := storage.Open(cfg.Storage, cfg.SweepRetention())
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
func Open(cfg config.StorageConfig, retention time.Duration) (Backend, error) {
	slog.Debug("opening admission storage",
		"backend", cfg.Backend,
		"retention", retention,
	)

	switch cfg.Backend {
	case "", "memory":
		return NewMemoryBackendWithConfig(MemoryBackendConfig{
			Shards: cfg.Memory.Shards,
		}), nil

	case "sqlite":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory %q: %w", dir, err)
			}
		}
		backend, err := NewSQLiteBackendWithConfig(SQLiteBackendConfig{
			DBPath:             cfg.SQLite.Path,
			Driver:             cfg.SQLite.Driver,
			CheckpointInterval: cfg.SQLite.CheckpointInterval,
			BusyTimeout:        cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite backend: %w", err)
		}
		return backend, nil

	case "redis":
		backend, err := NewRedisBackend(RedisBackendConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			KeyPrefix:   cfg.Redis.KeyPrefix,
			TTL:         retention,
			MaxRetries:  cfg.Redis.MaxRetries,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open redis backend: %w", err)
		}
		return backend, nil

	default:
		return nil, fmt.Errorf("unsupported storage backend %q (supported: memory, sqlite, redis)", cfg.Backend)
	}
}
