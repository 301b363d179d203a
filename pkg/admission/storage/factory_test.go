package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"personakit/gate/pkg/config"

	"github.com/alicebob/miniredis/v2"
)

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		cfg     config.StorageConfig
		want    string
		wantErr bool
	}{
		{
			name: "memory",
			cfg:  config.StorageConfig{Backend: "memory", Memory: config.MemoryConfig{Shards: 4}},
			want: "*storage.MemoryBackend",
		},
		{
			name: "empty defaults to memory",
			cfg:  config.StorageConfig{},
			want: "*storage.MemoryBackend",
		},
		{
			name: "sqlite in nested directory",
			cfg: config.StorageConfig{
				Backend: "sqlite",
				SQLite: config.SQLiteConfig{
					Path:   filepath.Join(t.TempDir(), "nested", "admission.db"),
					Driver: "sqlite",
				},
			},
			want: "*storage.SQLiteBackend",
		},
		{
			name: "redis",
			cfg: config.StorageConfig{
				Backend: "redis",
				Redis:   config.RedisConfig{Addr: mr.Addr(), DialTimeout: time.Second},
			},
			want: "*storage.RedisBackend",
		},
		{
			name:    "unknown backend",
			cfg:     config.StorageConfig{Backend: "etcd"},
			wantErr: true,
		},
		{
			name:    "redis without address",
			cfg:     config.StorageConfig{Backend: "redis"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := Open(tt.cfg, time.Hour)
			if tt.wantErr {
				if err == nil {
					backend.Close()
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer backend.Close()

			var got string
			switch backend.(type) {
			case *MemoryBackend:
				got = "*storage.MemoryBackend"
			case *SQLiteBackend:
				got = "*storage.SQLiteBackend"
			case *RedisBackend:
				got = "*storage.RedisBackend"
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %T", tt.want, backend)
			}

			if err := backend.Ping(context.Background()); err != nil {
				t.Errorf("Ping failed: %v", err)
			}
		})
	}
}
