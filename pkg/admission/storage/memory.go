package storage

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// MemoryBackend implements Backend using in-process maps.
// This is the default backend: fast, but neither durable nor shared, so in a
// horizontally scaled deployment every instance enforces its own quota.
//
// Keys are spread across a fixed set of shards, each with its own mutex.
// Calls for the same key always land on the same shard and serialize;
// calls for keys on different shards proceed in parallel.
type MemoryBackend struct {
	shards []*memoryShard

	mu     sync.RWMutex
	closed bool
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// MemoryBackendConfig configures the memory backend.
type MemoryBackendConfig struct {
	// Shards is the number of independently locked partitions.
	// Default: 64
	Shards int
}

// NewMemoryBackend creates an in-memory backend with default settings.
func NewMemoryBackend() *MemoryBackend {
	return NewMemoryBackendWithConfig(MemoryBackendConfig{})
}

// NewMemoryBackendWithConfig creates an in-memory backend with custom configuration.
func NewMemoryBackendWithConfig(cfg MemoryBackendConfig) *MemoryBackend {
	if cfg.Shards <= 0 {
		cfg.Shards = 64
	}

	shards := make([]*memoryShard, cfg.Shards)
	for i := range shards {
		shards[i] = &memoryShard{entries: make(map[string]*Entry)}
	}

	return &MemoryBackend{shards: shards}
}

// Update runs fn against the entry for key while holding the key's shard lock.
func (m *MemoryBackend) Update(ctx context.Context, key string, fn func(entry *Entry) error) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := m.acquire(); err != nil {
		return err
	}
	defer m.mu.RUnlock()

	shard := m.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	// fn works on a copy so a failed callback leaves the stored entry untouched.
	var working *Entry
	if existing, ok := shard.entries[key]; ok {
		working = existing.Clone()
	} else {
		working = &Entry{Key: key}
	}

	if err := fn(working); err != nil {
		return err
	}

	if working.Empty() {
		delete(shard.entries, key)
		return nil
	}
	working.Key = key
	shard.entries[key] = working
	return nil
}

// DeleteIfEmpty prunes the entry against retention and removes it when empty.
func (m *MemoryBackend) DeleteIfEmpty(ctx context.Context, key string, now time.Time, retention time.Duration) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	if err := m.acquire(); err != nil {
		return false, err
	}
	defer m.mu.RUnlock()

	shard := m.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.entries[key]
	if !ok {
		return false, nil
	}

	entry.Prune(now, retention)
	if !entry.Empty() {
		return false, nil
	}

	delete(shard.entries, key)
	return true, nil
}

// Keys returns a snapshot of all stored keys.
func (m *MemoryBackend) Keys(ctx context.Context) ([]string, error) {
	if err := m.acquire(); err != nil {
		return nil, err
	}
	defer m.mu.RUnlock()

	var keys []string
	for _, shard := range m.shards {
		shard.mu.Lock()
		for key := range shard.entries {
			keys = append(keys, key)
		}
		shard.mu.Unlock()
	}
	return keys, nil
}

// Len returns the number of stored keys.
func (m *MemoryBackend) Len(ctx context.Context) (int, error) {
	if err := m.acquire(); err != nil {
		return 0, err
	}
	defer m.mu.RUnlock()

	n := 0
	for _, shard := range m.shards {
		shard.mu.Lock()
		n += len(shard.entries)
		shard.mu.Unlock()
	}
	return n, nil
}

// Ping fails only after Close.
func (m *MemoryBackend) Ping(ctx context.Context) error {
	if err := m.acquire(); err != nil {
		return err
	}
	m.mu.RUnlock()
	return nil
}

// Close drops all entries. Further calls return ErrUnavailable.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for _, shard := range m.shards {
		shard.mu.Lock()
		shard.entries = make(map[string]*Entry)
		shard.mu.Unlock()
	}
	return nil
}

// acquire read-locks m.mu and fails if the backend is closed. On success the
// caller holds the read lock until it calls m.mu.RUnlock, so Close waits for
// in-flight calls and nothing is written after it returns.
func (m *MemoryBackend) acquire() error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("%w: memory backend is closed", ErrUnavailable)
	}
	return nil
}

// shardFor maps a key to its shard with FNV-1a.
func (m *MemoryBackend) shardFor(key string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}
