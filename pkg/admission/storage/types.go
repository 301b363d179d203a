package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable marks failures of the backing store itself (network
// partition, closed database, exhausted optimistic retries). Backends wrap
// their transport errors with it so callers can apply a failure policy
// without knowing which backend is in use.
var ErrUnavailable = errors.New("admission storage unavailable")

// Backend persists admission windows keyed by identity.
//
// Every method that touches an entry does so inside a per-key critical
// section: two concurrent Update calls for the same key never observe the
// same pre-image. Implementations must be safe for concurrent use.
type Backend interface {
	// Update loads the entry for key (a fresh, empty entry if none exists),
	// passes it to fn, and persists the result atomically.
	//
	// If fn returns an error nothing is written and that error is returned
	// unchanged. If fn leaves the entry empty, the key is removed instead of
	// stored. fn may be invoked more than once by optimistic backends and
	// must not have side effects beyond the entry and its own closure.
	Update(ctx context.Context, key string, fn func(entry *Entry) error) error

	// DeleteIfEmpty prunes the entry for key against the retention ceiling
	// and removes it if nothing is left. It reports whether the key was
	// removed. Entries that still hold timestamps are never deleted.
	DeleteIfEmpty(ctx context.Context, key string, now time.Time, retention time.Duration) (bool, error)

	// Keys returns a snapshot of the keys currently stored.
	Keys(ctx context.Context) ([]string, error)

	// Len returns the number of stored keys.
	Len(ctx context.Context) (int, error)

	// Ping reports whether the backend can serve requests.
	Ping(ctx context.Context) error

	// Close releases the backend's resources. The backend must not be used
	// afterwards.
	Close() error
}

// Expirer is implemented by backends that evict idle keys on their own
// after a TTL. The TTL must never be shorter than the longest window in
// use, so it has to follow live changes of the window.
type Expirer interface {
	TTL() time.Duration
	SetTTL(ctx context.Context, ttl time.Duration) error
}

// Entry is the admission window of a single key: the instants of every
// admitted request that has not yet been pruned, in arrival order.
type Entry struct {
	// Key identifies the window. Set by the backend.
	Key string

	// Timestamps holds one instant per admitted request.
	Timestamps []time.Time

	// UpdatedAt is when the entry was last written.
	UpdatedAt time.Time
}

// Prune drops every timestamp t with now - t >= window and returns how many
// were removed. Timestamps from the future (after a backward clock jump)
// are kept.
func (e *Entry) Prune(now time.Time, window time.Duration) int {
	kept := e.Timestamps[:0]
	for _, ts := range e.Timestamps {
		if now.Sub(ts) < window {
			kept = append(kept, ts)
		}
	}
	removed := len(e.Timestamps) - len(kept)
	// Clear the tail so dropped times are not retained by the backing array.
	for i := len(kept); i < len(e.Timestamps); i++ {
		e.Timestamps[i] = time.Time{}
	}
	e.Timestamps = kept
	return removed
}

// CountInWindow returns how many timestamps satisfy now - t < window
// without modifying the entry.
func (e *Entry) CountInWindow(now time.Time, window time.Duration) int {
	n := 0
	for _, ts := range e.Timestamps {
		if now.Sub(ts) < window {
			n++
		}
	}
	return n
}

// Oldest returns the earliest timestamp, or the zero time for an empty
// entry. Timestamps are appended in arrival order, but a backward clock jump
// can break that order, so the minimum is searched for.
func (e *Entry) Oldest() time.Time {
	if len(e.Timestamps) == 0 {
		return time.Time{}
	}
	oldest := e.Timestamps[0]
	for _, ts := range e.Timestamps[1:] {
		if ts.Before(oldest) {
			oldest = ts
		}
	}
	return oldest
}

// Empty reports whether the entry holds no timestamps.
func (e *Entry) Empty() bool {
	return len(e.Timestamps) == 0
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	c := &Entry{
		Key:       e.Key,
		UpdatedAt: e.UpdatedAt,
	}
	if len(e.Timestamps) > 0 {
		c.Timestamps = make([]time.Time, len(e.Timestamps))
		copy(c.Timestamps, e.Timestamps)
	}
	return c
}

// record is the serialized form shared by the SQLite and Redis backends.
type record struct {
	Timestamps []int64 `json:"ts"`
	UpdatedAt  int64   `json:"updated_at"`
}

// encodeEntry serializes an entry as JSON with unix-nanosecond instants.
func encodeEntry(e *Entry) ([]byte, error) {
	rec := record{
		Timestamps: make([]int64, len(e.Timestamps)),
		UpdatedAt:  e.UpdatedAt.UnixNano(),
	}
	for i, ts := range e.Timestamps {
		rec.Timestamps[i] = ts.UnixNano()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry %q: %w", e.Key, err)
	}
	return data, nil
}

// decodeEntry is the inverse of encodeEntry.
func decodeEntry(key string, data []byte) (*Entry, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry %q: %w", key, err)
	}
	e := &Entry{Key: key}
	if rec.UpdatedAt != 0 {
		e.UpdatedAt = time.Unix(0, rec.UpdatedAt)
	}
	if len(rec.Timestamps) > 0 {
		e.Timestamps = make([]time.Time, len(rec.Timestamps))
		for i, ns := range rec.Timestamps {
			e.Timestamps[i] = time.Unix(0, ns)
		}
	}
	return e, nil
}

// validateKey rejects keys no backend can store.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	return nil
}
