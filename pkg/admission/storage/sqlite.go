package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver "sqlite3" (cgo)
	_ "modernc.org/sqlite"          // SQLite driver "sqlite" (pure Go)
)

const (
	// DriverModernc selects the pure-Go modernc.org/sqlite driver.
	DriverModernc = "sqlite"

	// DriverMattn selects the cgo github.com/mattn/go-sqlite3 driver.
	DriverMattn = "sqlite3"
)

// SQLiteBackend implements Backend on a single SQLite file.
// It survives restarts, which the memory backend does not, but like the
// memory backend it is local to one node.
//
// The pool holds exactly one connection, so every read-modify-write runs in
// a transaction that no other caller can interleave with.
type SQLiteBackend struct {
	db                 *sql.DB
	dbPath             string
	checkpointInterval time.Duration
	done               chan struct{}
	closeOnce          sync.Once
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// Driver is the database/sql driver name: "sqlite" or "sqlite3".
	// Default: "sqlite"
	Driver string

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks held by other processes.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a SQLite backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{DBPath: dbPath})
}

// NewSQLiteBackendWithConfig creates a SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverModernc
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:                 db,
		dbPath:             cfg.DBPath,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	go backend.checkpointLoop()

	return backend, nil
}

// buildDSN renders the connection string in the dialect of each driver.
func buildDSN(cfg SQLiteBackendConfig) (string, error) {
	busy := cfg.BusyTimeout.Milliseconds()
	switch cfg.Driver {
	case DriverModernc:
		return fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_txlock=immediate",
			cfg.DBPath, busy), nil
	case DriverMattn:
		return fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL&_txlock=immediate",
			cfg.DBPath, busy), nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q (want %q or %q)", cfg.Driver, DriverModernc, DriverMattn)
	}
}

func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS admission_entries (
		key TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_admission_updated_at ON admission_entries(updated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Update runs fn inside a transaction on the single pooled connection.
func (s *SQLiteBackend) Update(ctx context.Context, key string, fn func(entry *Entry) error) error {
	if err := validateKey(key); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ErrUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck

	entry, _, err := s.loadTx(ctx, tx, key)
	if err != nil {
		return err
	}

	if err := fn(entry); err != nil {
		return err
	}

	if err := s.storeTx(ctx, tx, key, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrUnavailable, err)
	}
	return nil
}

// DeleteIfEmpty prunes against retention and deletes the row if nothing is left.
func (s *SQLiteBackend) DeleteIfEmpty(ctx context.Context, key string, now time.Time, retention time.Duration) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: begin transaction: %w", ErrUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck

	entry, found, err := s.loadTx(ctx, tx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	if entry.Prune(now, retention) == 0 && !entry.Empty() {
		return false, nil
	}

	if err := s.storeTx(ctx, tx, key, entry); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: commit: %w", ErrUnavailable, err)
	}

	return entry.Empty(), nil
}

// Keys returns all stored keys.
func (s *SQLiteBackend) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM admission_entries`)
	if err != nil {
		return nil, fmt.Errorf("%w: list keys: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating rows: %w", ErrUnavailable, err)
	}

	return keys, nil
}

// Len returns the number of stored rows.
func (s *SQLiteBackend) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admission_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count entries: %w", ErrUnavailable, err)
	}
	return n, nil
}

// Ping checks the database connection.
func (s *SQLiteBackend) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Close stops the checkpoint loop and closes the database.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteBackend) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)

		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// loadTx reads the entry for key. A missing row yields a fresh entry and found=false.
func (s *SQLiteBackend) loadTx(ctx context.Context, tx *sql.Tx, key string) (*Entry, bool, error) {
	var state string
	err := tx.QueryRowContext(ctx, `SELECT state FROM admission_entries WHERE key = ?`, key).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return &Entry{Key: key}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: load entry %q: %w", ErrUnavailable, key, err)
	}

	entry, err := decodeEntry(key, []byte(state))
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// storeTx writes the entry, or deletes the row when the entry is empty.
func (s *SQLiteBackend) storeTx(ctx context.Context, tx *sql.Tx, key string, entry *Entry) error {
	if entry.Empty() {
		if _, err := tx.ExecContext(ctx, `DELETE FROM admission_entries WHERE key = ?`, key); err != nil {
			return fmt.Errorf("%w: delete entry %q: %w", ErrUnavailable, key, err)
		}
		return nil
	}

	entry.Key = key
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO admission_entries (key, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
	`, key, string(data), entry.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: save entry %q: %w", ErrUnavailable, key, err)
	}
	return nil
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteBackend) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}
