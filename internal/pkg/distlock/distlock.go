// Package distlock keeps batch jobs, such as the reconcile sweep, from
// running on two hosts at once.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrHeld means another process holds the lock.
var ErrHeld = errors.New("distlock: lock is held elsewhere")

// Lock is a non-blocking mutual exclusion lock. A Lock value is used from
// one goroutine; separate goroutines need separate instances.
type Lock interface {
	// Acquire tries to take the lock and reports whether it did.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock up if it is still ours.
	Release(ctx context.Context) error
}

// New picks the backend: Redis when a client is given, otherwise
// PostgreSQL advisory locks when db is a postgres handle, otherwise a
// lock local to this process.
func New(client redis.UniversalClient, db *sql.DB, key string, ttl time.Duration) Lock {
	switch {
	case client != nil:
		return NewRedisLock(client, key, ttl)
	case db != nil:
		return NewPGAdvisoryLock(db, key)
	default:
		return &Local{}
	}
}

// Run calls fn while holding l. It returns ErrHeld without calling fn when
// the lock is taken.
func Run(ctx context.Context, l Lock, fn func(context.Context) error) error {
	ok, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrHeld
	}
	defer l.Release(context.WithoutCancel(ctx))
	return fn(ctx)
}

// PGAdvisoryLock uses session-scoped pg_try_advisory_lock, so a dropped
// connection releases it.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock derives the lock id from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// Acquire pins a connection so Release unlocks the same session.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks and returns the connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	cerr := l.conn.Close()
	l.conn = nil
	return errors.Join(err, cerr)
}

// Local only excludes callers sharing the value.
type Local struct {
	held bool
}

func (l *Local) Acquire(context.Context) (bool, error) {
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *Local) Release(context.Context) error {
	l.held = false
	return nil
}
