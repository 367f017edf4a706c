package scrape

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jordanlanch/leadscope/pkg/cache"
	"github.com/jordanlanch/leadscope/pkg/logger"
)

// Locker guards a crawl so one business is crawled by one worker at a time
type Locker interface {
	// TryLock returns ok=false when key is already held. unlock is only
	// valid when ok is true.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// LocalLocker is an in-process Locker
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates a LocalLocker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// TryLock implements Locker. The ttl is ignored since the holder always
// unlocks before the process can lose it.
func (l *LocalLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}

// RedisLocker shares crawl locks between processes through Redis
type RedisLocker struct {
	cache  *cache.Client
	logger logger.Logger
}

// NewRedisLocker creates a RedisLocker
func NewRedisLocker(c *cache.Client, log logger.Logger) *RedisLocker {
	return &RedisLocker{cache: c, logger: logger.OrDefault(log).With("component", "scrape_lock")}
}

// TryLock implements Locker
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.cache.TryLock(ctx, key, token, ttl)
	if err != nil || !ok {
		return nil, false, err
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.cache.Unlock(ctx, key, token); err != nil {
			l.logger.Warn("failed to release crawl lock", "key", key, "error", err)
		}
	}, true, nil
}

func lockKey(businessID string) string {
	return "scrape:lock:" + businessID
}
