// Package distlock provides the cluster-wide mutual exclusion used by
// scheduled jobs: Redis SET NX when Redis is configured, PostgreSQL advisory
// locks otherwise.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned when releasing or extending a lock this process
// does not own.
var ErrNotHeld = errors.New("lock not held")

// DistLock is the interface for distributed locking. A lock value belongs to
// one holder; concurrent holders in one process need separate instances.
type DistLock interface {
	// Acquire tries to acquire the lock without blocking.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// NewLock picks Redis when redisClient is non-nil, otherwise a PostgreSQL
// advisory lock on db.
func NewLock(redisClient redis.UniversalClient, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// WithLock runs fn only if lock can be acquired, and releases it afterwards.
// ran is false when another holder has the lock.
func WithLock(ctx context.Context, lock DistLock, fn func(ctx context.Context) error) (ran bool, err error) {
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() {
		// The run's own context may be done by now.
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if relErr := lock.Release(relCtx); relErr != nil && err == nil {
			err = fmt.Errorf("release lock: %w", relErr)
		}
	}()
	return true, fn(ctx)
}

// PGAdvisoryLock implements DistLock with pg_try_advisory_lock. Advisory
// locks are session-scoped, so the lock pins one pooled connection from
// Acquire until Release; if that connection drops the lock goes with it.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock derives a stable lock id from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, errors.New("advisory lock already acquired by this instance")
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock connection: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("pg_try_advisory_lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return ErrNotHeld
	}
	conn := l.conn
	l.conn = nil
	defer conn.Close()

	var released bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID).Scan(&released); err != nil {
		return fmt.Errorf("pg_advisory_unlock: %w", err)
	}
	if !released {
		return ErrNotHeld
	}
	return nil
}
