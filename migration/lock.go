package migration

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/GoCodeAlone/sqlschema/dialect"
)

// DefaultLockKey is the lock key used when none is configured.
const DefaultLockKey = "sqlschema_update"

// DistributedLock provides mutual exclusion for schema updates across
// multiple processes or nodes.
type DistributedLock interface {
	// Acquire obtains the lock for the given key. The returned release function
	// must be called to release the lock.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// NewLock returns the server-side lock matching d. timeout bounds the wait
// where the server supports it; zero waits indefinitely.
func NewLock(d dialect.Dialect, db *sql.DB, timeout time.Duration) (DistributedLock, error) {
	switch d.Name() {
	case "postgres":
		return NewPostgresLock(db), nil
	case "mysql":
		return NewMySQLLock(db, timeout), nil
	}
	return nil, fmt.Errorf("no lock for dialect %q: %w", d.Name(), dialect.ErrUnsupportedDialect)
}

// PostgresLock implements DistributedLock using PostgreSQL advisory locks.
// Advisory locks belong to a session, so the lock pins one pooled connection
// until release.
type PostgresLock struct {
	db *sql.DB
}

// NewPostgresLock creates a new PostgresLock.
func NewPostgresLock(db *sql.DB) *PostgresLock {
	return &PostgresLock{db: db}
}

// Acquire blocks on pg_advisory_lock. The lock key is hashed to an int64.
func (l *PostgresLock) Acquire(ctx context.Context, key string) (func(), error) {
	lockID := hashLockKey(key)

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockID); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pg_advisory_lock(%d): %w", lockID, err)
	}

	release := func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
		_ = conn.Close()
	}
	return release, nil
}

// MySQLLock implements DistributedLock using GET_LOCK named locks.
type MySQLLock struct {
	db      *sql.DB
	timeout time.Duration
}

// NewMySQLLock creates a new MySQLLock. A zero timeout waits indefinitely.
func NewMySQLLock(db *sql.DB, timeout time.Duration) *MySQLLock {
	return &MySQLLock{db: db, timeout: timeout}
}

// Acquire calls GET_LOCK on a dedicated connection. A result other than 1
// (timeout or error) yields ErrLockNotAcquired.
func (l *MySQLLock) Acquire(ctx context.Context, key string) (func(), error) {
	seconds := -1
	if l.timeout > 0 {
		// GET_LOCK waits whole seconds and 0 means no wait.
		seconds = int(math.Ceil(l.timeout.Seconds()))
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock connection: %w", err)
	}
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, ?)`, key, seconds).Scan(&got); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("GET_LOCK(%s): %w", key, err)
	}
	if !got.Valid || got.Int64 != 1 {
		_ = conn.Close()
		return nil, fmt.Errorf("GET_LOCK(%s): %w", key, ErrLockNotAcquired)
	}

	release := func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT RELEASE_LOCK(?)`, key)
		_ = conn.Close()
	}
	return release, nil
}

// LocalLock implements DistributedLock with a process-local mutex, for
// callers that share one process and need no server round trip.
type LocalLock struct {
	mu sync.Mutex
}

// NewLocalLock creates a new LocalLock.
func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

// Acquire obtains the mutex lock. Returns an error if the context is already cancelled.
func (l *LocalLock) Acquire(ctx context.Context, _ string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire local lock: %w", err)
	}

	l.mu.Lock()
	return func() { l.mu.Unlock() }, nil
}

// hashLockKey produces a stable int64 hash from a string key for use with
// pg_advisory_lock. Uses FNV-1a.
func hashLockKey(key string) int64 {
	var h uint64 = 14695981039346656037 // FNV offset basis
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= 1099511628211 // FNV prime
	}
	return int64(h & 0x7FFFFFFFFFFFFFFF) //nolint:gosec // intentional truncation for advisory lock key
}
