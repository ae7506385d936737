package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"TrendCascade/internal/domain/models"
	"TrendCascade/pkg/cache"
	"TrendCascade/pkg/logger"
)

const (
	minPoll = 10 * time.Millisecond
	maxPoll = 100 * time.Millisecond
)

type Option func(*Locker)

func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) { l.ttl = ttl }
}

// WithMaxWait bounds acquisition when the caller's context carries no deadline.
func WithMaxWait(d time.Duration) Option {
	return func(l *Locker) { l.maxWait = d }
}

func WithPrefix(prefix string) Option {
	return func(l *Locker) { l.prefix = prefix }
}

func WithLogger(lgr *logger.Logger) Option {
	return func(l *Locker) { l.log = lgr }
}

// Locker hands out owned per-key locks backed by cache.Service.TryLock. With a Redis cache the
// lock is shared across processes; with MemoryCache it only serializes the current process.
type Locker struct {
	cache   cache.Service
	ttl     time.Duration
	maxWait time.Duration
	prefix  string
	log     *logger.Logger
}

func New(c cache.Service, opts ...Option) *Locker {
	l := &Locker{
		cache:   c,
		ttl:     30 * time.Second,
		maxWait: 10 * time.Second,
		prefix:  "lock",
		log:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock blocks until key is acquired. A timeout is reported as models.ErrPersistenceConflict and a
// cache failure as models.ErrUpstreamUnavailable.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	if _, ok := ctx.Deadline(); !ok && l.maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.maxWait)
		defer cancel()
	}

	full := cache.Key(l.prefix, key)
	poll := minPoll
	for {
		token, ok, err := l.cache.TryLock(ctx, full, l.ttl)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: lock %s: %w", models.ErrPersistenceConflict, key, ctxErr)
			}
			return nil, fmt.Errorf("%w: lock %s: %w", models.ErrUpstreamUnavailable, key, err)
		}
		if ok {
			return l.releaser(full, token), nil
		}

		t := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("%w: lock %s: %w", models.ErrPersistenceConflict, key, ctx.Err())
		case <-t.C:
		}
		if poll *= 2; poll > maxPoll {
			poll = maxPoll
		}
	}
}

func (l *Locker) releaser(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// Release even when the caller's context is already cancelled.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := l.cache.Unlock(ctx, key, token); err != nil {
				if errors.Is(err, cache.ErrLockNotHeld) {
					l.log.Warn("lock expired before release", logger.String("key", key))
					return
				}
				l.log.Error("release lock", logger.String("key", key), logger.Error(err))
			}
		})
	}
}
