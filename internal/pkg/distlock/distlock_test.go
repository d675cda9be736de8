package distlock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "conversation:c-1", time.Minute)
	b := NewRedisLock(client, "conversation:c-1", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("lock:conversation:c-1"))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	// b does not own the key, so its release is a no-op
	require.NoError(t, b.Release(ctx))
	assert.True(t, mr.Exists("lock:conversation:c-1"))

	require.NoError(t, a.Release(ctx))
	assert.False(t, mr.Exists("lock:conversation:c-1"))
}

func TestRedisLock_Extend(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	l := NewRedisLock(client, "k", time.Second)
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NoError(t, l.Extend(ctx, time.Minute))

	require.NoError(t, l.Release(ctx))
	assert.Error(t, l.Extend(ctx, time.Minute))
}

func TestRedisLocker_RenewsHeldLease(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, 300*time.Millisecond)

	release, err := locker.Acquire(context.Background(), "c-1")
	require.NoError(t, err)

	// the lease is about to run out; the holder must push it back
	mr.SetTTL("lock:c-1", time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL("lock:c-1") == 300*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)

	release()
	assert.False(t, mr.Exists("lock:c-1"))
	release()
}

func TestRedisLocker_StopsRenewingLostLease(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, 150*time.Millisecond)

	release, err := locker.Acquire(context.Background(), "c-1")
	require.NoError(t, err)

	require.NoError(t, mr.Set("lock:c-1", "another-holder"))
	mr.SetTTL("lock:c-1", time.Minute)
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, time.Minute, mr.TTL("lock:c-1"))

	release()
	v, err := mr.Get("lock:c-1")
	require.NoError(t, err)
	assert.Equal(t, "another-holder", v)
}

func TestRedisLocker_WaitsForHolder(t *testing.T) {
	_, client := setupTestRedis(t)
	locker := NewRedisLocker(client, time.Minute)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "c-1")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r2, err := locker.Acquire(ctx, "c-1")
		if err == nil {
			r2()
		}
	}()

	select {
	case <-done:
		t.Fatal("second acquire should block while the lease is held")
	case <-time.After(100 * time.Millisecond):
	}

	release()
	release() // idempotent

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second acquire never completed")
	}
}

func TestRedisLocker_TimesOut(t *testing.T) {
	_, client := setupTestRedis(t)
	locker := NewRedisLocker(client, time.Minute)

	release, err := locker.Acquire(context.Background(), "c-1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "c-1")
	assert.True(t, errors.Is(err, ErrNotAcquired))
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := km.Acquire(context.Background(), "c-1")
			if err != nil {
				t.Error(err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, km.Len(), "slots are reclaimed")
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	r1, err := km.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer r1()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r2, err := km.Acquire(ctx, "b")
	require.NoError(t, err)
	r2()
}

func TestKeyedMutex_ContextCancelled(t *testing.T) {
	km := NewKeyedMutex()
	r1, err := km.Acquire(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = km.Acquire(ctx, "a")
	assert.True(t, errors.Is(err, ErrNotAcquired))

	r1()
	assert.Equal(t, 0, km.Len())
}

func TestPGAdvisoryLock_PinsConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	l := NewPGAdvisoryLock(db, "triage:conversation:c-1")
	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = l.Acquire(context.Background())
	assert.Error(t, err, "double acquire on one instance is refused")

	require.NoError(t, l.Release(context.Background()))
	require.NoError(t, l.Release(context.Background()), "second release is a no-op")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewLocker_Backends(t *testing.T) {
	_, client := setupTestRedis(t)
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	assert.IsType(t, &RedisLocker{}, NewLocker(client, db, time.Second))
	assert.IsType(t, &PGLocker{}, NewLocker(nil, db, time.Second))
	assert.IsType(t, &KeyedMutex{}, NewLocker(nil, nil, time.Second))
}
