// Package storage provides persistence backends for admission windows.
//
// # Overview
//
// An admission window is the list of instants at which requests for one key
// were admitted. The package defines the Backend interface and three
// implementations:
//
//   - Memory: sharded in-process maps (default, per instance, no persistence)
//   - SQLite: single-file persistence for one node, survives restarts
//   - Redis: shared state for several instances behind a load balancer
//
// # Usage
//
//	backend := storage.NewMemoryBackend()
//
//	err := backend.Update(ctx, "generate:user-42", func(e *storage.Entry) error {
//	    e.Prune(now, time.Hour)
//	    e.Timestamps = append(e.Timestamps, now)
//	    return nil
//	})
//
// # Atomicity
//
// Update and DeleteIfEmpty are the only ways to change an entry, and each is
// atomic per key: the memory backend holds the shard lock, SQLite runs in a
// transaction on its single connection, and Redis uses WATCH/MULTI/EXEC with
// bounded retries. Transport failures are wrapped with ErrUnavailable.
package storage
