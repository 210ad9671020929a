package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// UnitLocker provides the per-unit single-writer scope that wraps every write
// on a unit: direct intents, approvals, payments and bulk items all take the same
// lock class. The returned function releases the lock and must be called exactly once.
type UnitLocker interface {
	Lock(ctx context.Context, unitID int64) (unlock func(), err error)
}

// ── In-process locker ─────────────────────────────────────────────────────────

type localLocker struct {
	mu      sync.Mutex
	entries map[int64]*lockEntry
}

type lockEntry struct {
	slot chan struct{}
	refs int
}

// NewLocalLocker returns a keyed mutex for single-instance deployments.
// Entries are reference counted and dropped once no goroutine waits on them.
func NewLocalLocker() UnitLocker {
	return &localLocker{entries: make(map[int64]*lockEntry)}
}

func (l *localLocker) Lock(ctx context.Context, unitID int64) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[unitID]
	if !ok {
		entry = &lockEntry{slot: make(chan struct{}, 1)}
		l.entries[unitID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.slot <- struct{}{}:
	case <-ctx.Done():
		l.release(unitID, entry)
		return nil, fmt.Errorf("unit %d: %w: %v", unitID, ErrUnitBusy, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.slot
			l.release(unitID, entry)
		})
	}, nil
}

func (l *localLocker) release(unitID int64, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, unitID)
	}
}

// ── Redis locker ──────────────────────────────────────────────────────────────

type redisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker returns a locker shared by every instance connected to the same Redis.
// ttl bounds how long a crashed holder can block a unit; waiters retry until their
// context expires (or ttl, when the context has no deadline).
func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) UnitLocker {
	return &redisLocker{
		client: redislock.New(rdb),
		ttl:    ttl,
		retry:  25 * time.Millisecond,
	}
}

func unitLockKey(unitID int64) string {
	return fmt.Sprintf("stock:unit:%d", unitID)
}

func (l *redisLocker) Lock(ctx context.Context, unitID int64) (func(), error) {
	lock, err := l.client.Obtain(ctx, unitLockKey(unitID), l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.retry),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("unit %d: %w", unitID, ErrUnitBusy)
	}
	// Obtain reports a retry loop cut short by the context as the context's own error.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("unit %d: %w: %v", unitID, ErrUnitBusy, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock for unit %d: %w", unitID, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// A release failure only means the ttl will expire the key.
			_ = lock.Release(context.Background())
		})
	}, nil
}
