package services

import (
	"context"
	"sync"
	"time"

	"payment-api/internal/apperr"
	"payment-api/pkg/logging"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// OrderLocker serializes reconciliation of a single order across workers.
type OrderLocker interface {
	// Lock blocks until the order is held or ctx ends. The returned function releases it.
	Lock(ctx context.Context, outTradeNo string) (unlock func(), err error)
}

// RedisOrderLocker holds per-order locks in Redis so every instance sees them
type RedisOrderLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
	tries  int
}

// NewRedisOrderLocker creates a redsync-backed locker
func NewRedisOrderLocker(rdb *redis.Client, expiry time.Duration) *RedisOrderLocker {
	pool := goredis.NewPool(rdb)
	return &RedisOrderLocker{
		rs:     redsync.New(pool),
		expiry: expiry,
		tries:  32,
	}
}

func (l *RedisOrderLocker) Lock(ctx context.Context, outTradeNo string) (func(), error) {
	mutex := l.rs.NewMutex(
		"order_lock:"+outTradeNo,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(l.tries),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, err, "failed to lock order %s", outTradeNo)
	}
	return func() {
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			logging.Warnf("Failed to unlock order %s: %v", outTradeNo, err)
		}
	}, nil
}

// LocalOrderLocker is an in-process keyed mutex for single-instance deployments.
type LocalOrderLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalOrderLocker() *LocalOrderLocker {
	return &LocalOrderLocker{locks: make(map[string]*localLock)}
}

func (l *LocalOrderLocker) Lock(ctx context.Context, outTradeNo string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[outTradeNo]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[outTradeNo] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(outTradeNo, lk)
		return nil, apperr.Wrap(apperr.KindPersistence, ctx.Err(), "failed to lock order %s", outTradeNo)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lk.ch
			l.release(outTradeNo, lk)
		})
	}, nil
}

func (l *LocalOrderLocker) release(key string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}
