package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend implements Backend on Redis, so every gateway instance
// pointing at the same Redis shares one quota per key.
//
// Each read-modify-write is an optimistic transaction: the key is WATCHed,
// read, and rewritten in MULTI/EXEC. If another writer touched the key in
// between, EXEC aborts and the whole cycle is retried.
type RedisBackend struct {
	client     redis.UniversalClient
	prefix     string
	ttl        atomic.Int64
	maxRetries int
	ownsClient bool
	closeOnce  sync.Once
}

// RedisBackendConfig configures the Redis backend.
type RedisBackendConfig struct {
	// Client is an existing client to use. When nil, a client is built from
	// Addr, Password and DB and closed by Close.
	Client redis.UniversalClient

	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces every stored key.
	// Default: "gate:admission:"
	KeyPrefix string

	// TTL is the expiry applied on every write, letting Redis evict idle
	// windows on its own. It must be at least the longest window in use.
	// Default: 2 hours
	TTL time.Duration

	// MaxRetries bounds optimistic transaction attempts per call.
	// Default: 100
	MaxRetries int

	// DialTimeout bounds connection establishment for a client built here.
	DialTimeout time.Duration
}

// callbackError carries an error returned by the caller's fn through
// go-redis so it can be told apart from transport failures.
type callbackError struct {
	err error
}

func (e *callbackError) Error() string { return e.err.Error() }
func (e *callbackError) Unwrap() error { return e.err }

// NewRedisBackend creates a Redis backend.
func NewRedisBackend(cfg RedisBackendConfig) (*RedisBackend, error) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "gate:admission:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 100
	}

	client := cfg.Client
	owns := false
	if client == nil {
		if cfg.Addr == "" {
			return nil, fmt.Errorf("redis address is required")
		}
		client = redis.NewClient(&redis.Options{
			Addr:        cfg.Addr,
			Password:    cfg.Password,
			DB:          cfg.DB,
			DialTimeout: cfg.DialTimeout,
		})
		owns = true
	}

	r := &RedisBackend{
		client:     client,
		prefix:     cfg.KeyPrefix,
		maxRetries: cfg.MaxRetries,
		ownsClient: owns,
	}
	r.ttl.Store(int64(cfg.TTL))
	return r, nil
}

// TTL returns the expiry currently applied on writes.
func (r *RedisBackend) TTL() time.Duration {
	return time.Duration(r.ttl.Load())
}

// SetTTL changes the expiry applied on writes. When ttl grows, every stored
// key is re-expired to ttl so that no key written under the old value can
// vanish while its instants are still inside a longer window. A shorter ttl
// only affects later writes.
func (r *RedisBackend) SetTTL(ctx context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("redis ttl must be positive, got %s", ttl)
	}
	prev := time.Duration(r.ttl.Swap(int64(ttl)))
	if ttl <= prev {
		return nil
	}

	keys, err := r.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := r.client.PExpire(ctx, r.prefix+key, ttl).Err(); err != nil {
			return fmt.Errorf("%w: extend ttl of %q: %w", ErrUnavailable, key, err)
		}
	}
	return nil
}

// Update runs fn inside a WATCH/MULTI/EXEC cycle, retrying on conflict.
func (r *RedisBackend) Update(ctx context.Context, key string, fn func(entry *Entry) error) error {
	if err := validateKey(key); err != nil {
		return err
	}

	rkey := r.prefix + key
	txf := func(tx *redis.Tx) error {
		entry, _, err := r.load(ctx, tx, key, rkey)
		if err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			return &callbackError{err: err}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return r.store(ctx, pipe, rkey, entry, false)
		})
		return err
	}

	return r.withRetry(ctx, key, rkey, txf)
}

// DeleteIfEmpty prunes against retention and deletes the key if nothing is left.
func (r *RedisBackend) DeleteIfEmpty(ctx context.Context, key string, now time.Time, retention time.Duration) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	rkey := r.prefix + key
	var deleted bool
	txf := func(tx *redis.Tx) error {
		deleted = false
		entry, found, err := r.load(ctx, tx, key, rkey)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		if entry.Prune(now, retention) == 0 && !entry.Empty() {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return r.store(ctx, pipe, rkey, entry, true)
		})
		if err == nil {
			deleted = entry.Empty()
		}
		return err
	}

	if err := r.withRetry(ctx, key, rkey, txf); err != nil {
		return false, err
	}
	return deleted, nil
}

// Keys scans the key space under the configured prefix.
func (r *RedisBackend) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 256).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: scan keys: %w", ErrUnavailable, err)
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, r.prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// Len counts keys under the configured prefix.
func (r *RedisBackend) Len(ctx context.Context) (int, error) {
	keys, err := r.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Ping checks connectivity to Redis.
func (r *RedisBackend) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Close closes the client if the backend created it.
func (r *RedisBackend) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.ownsClient {
			err = r.client.Close()
		}
	})
	return err
}

func (r *RedisBackend) withRetry(ctx context.Context, key, rkey string, txf func(tx *redis.Tx) error) error {
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, rkey)
		if err == nil {
			return nil
		}

		var cbErr *callbackError
		if errors.As(err, &cbErr) {
			return cbErr.err
		}
		if errors.Is(err, redis.TxFailedErr) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%w: update %q: %w", ErrUnavailable, key, ctxErr)
			}
			continue
		}
		return fmt.Errorf("%w: update %q: %w", ErrUnavailable, key, err)
	}
	return fmt.Errorf("%w: update %q: optimistic transaction retries exhausted after %d attempts",
		ErrUnavailable, key, r.maxRetries)
}

func (r *RedisBackend) load(ctx context.Context, tx *redis.Tx, key, rkey string) (*Entry, bool, error) {
	data, err := tx.Get(ctx, rkey).Bytes()
	if errors.Is(err, redis.Nil) {
		return &Entry{Key: key}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	entry, err := decodeEntry(key, data)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// store writes entry, or deletes the key when it is empty. With keepTTL the
// key's current expiry is left alone, so a sweep does not extend the life of
// an idle window.
func (r *RedisBackend) store(ctx context.Context, pipe redis.Pipeliner, rkey string, entry *Entry, keepTTL bool) error {
	if entry.Empty() {
		pipe.Del(ctx, rkey)
		return nil
	}
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	if keepTTL {
		pipe.SetArgs(ctx, rkey, data, redis.SetArgs{KeepTTL: true})
		return nil
	}
	pipe.Set(ctx, rkey, data, r.TTL())
	return nil
}
