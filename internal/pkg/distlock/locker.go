package distlock

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/deskpilot/support-triage/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Locker hands out exclusive leases keyed by name. Acquire blocks until the
// lease is held or ctx is done; the returned release func is idempotent.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// DefaultRetryInterval is how often a busy lease is polled.
const DefaultRetryInterval = 25 * time.Millisecond

// NewLocker picks the best available backend: Redis when a client is given,
// PostgreSQL advisory locks when only a database is given, and an in-process
// keyed mutex otherwise (single-replica deployments and tests).
func NewLocker(redisClient *redis.Client, db *sql.DB, ttl time.Duration) Locker {
	switch {
	case redisClient != nil:
		return NewRedisLocker(redisClient, ttl)
	case db != nil:
		return NewPGLocker(db)
	default:
		return NewKeyedMutex()
	}
}

func pollAcquire(ctx context.Context, lock DistLock, interval time.Duration) error {
	for {
		ok, err := lock.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrNotAcquired, ctx.Err())
			}
			return err
		}
		if ok {
			return nil
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w: %v", ErrNotAcquired, ctx.Err())
		case <-t.C:
		}
	}
}

// releaseDetached runs Release on a fresh context: the caller's context is
// often already cancelled when the lease is given back.
func releaseDetached(lock DistLock, key string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := lock.Release(ctx); err != nil {
				logger.Warn("[distlock] release failed", "key", key, "error", err)
			}
		})
	}
}

// RedisLocker issues RedisLock leases. A held lease is extended every third
// of its TTL until it is released, so an evaluation that outlives the TTL
// keeps it.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker creates a Redis-backed Locker. ttl bounds how long a crashed
// holder can block others.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, retry: DefaultRetryInterval}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lock := NewRedisLock(l.client, key, l.ttl)
	if err := pollAcquire(ctx, lock, l.retry); err != nil {
		return nil, err
	}
	if l.ttl <= 0 {
		return releaseDetached(lock, key), nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(lock, key, stop, done)

	release := releaseDetached(lock, key)
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			release()
		})
	}, nil
}

func (l *RedisLocker) renew(lock *RedisLock, key string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(l.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			err := lock.Extend(ctx, l.ttl)
			cancel()
			if err != nil {
				logger.Warn("[distlock.RedisLocker] lease renewal failed", "key", key, "error", err)
				return
			}
		}
	}
}

// PGLocker issues PGAdvisoryLock leases.
type PGLocker struct {
	db    *sql.DB
	retry time.Duration
}

// NewPGLocker creates a PostgreSQL advisory-lock Locker.
func NewPGLocker(db *sql.DB) *PGLocker {
	return &PGLocker{db: db, retry: DefaultRetryInterval}
}

// Acquire implements Locker.
func (l *PGLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lock := NewPGAdvisoryLock(l.db, key)
	if err := pollAcquire(ctx, lock, l.retry); err != nil {
		return nil, err
	}
	return releaseDetached(lock, key), nil
}

// KeyedMutex is an in-process Locker. Slots are reference counted and
// removed once no goroutine holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

// Acquire implements Locker.
func (k *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				k.put(key, s)
			})
		}, nil
	case <-ctx.Done():
		k.put(key, s)
		return nil, fmt.Errorf("%w: %v", ErrNotAcquired, ctx.Err())
	}
}

func (k *KeyedMutex) put(key string, s *slot) {
	k.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
	k.mu.Unlock()
}

// Len returns the number of live slots.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
