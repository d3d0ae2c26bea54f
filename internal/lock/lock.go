// Package lock provides a Redis-backed mutual exclusion lock so that
// at most one export run is active at a time.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/metscube/shipsync/internal/logging"
	"github.com/metscube/shipsync/internal/metrics"
)

// ErrNotAcquired is returned when the lock could not be obtained
// within the configured wait budget.
var ErrNotAcquired = errors.New("lock held by another run")

// releaseScript deletes the lock only if the caller still owns it.
// KEYS[1] = lock key
// ARGV[1] = owner token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker acquires and releases a named Redis lock.
type Locker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	log    *slog.Logger
}

// NewLocker creates a locker for the given key. The TTL bounds how long
// a crashed run can hold the lock.
func NewLocker(client *redis.Client, key string, ttl time.Duration) *Locker {
	return &Locker{
		client: client,
		key:    key,
		ttl:    ttl,
		log:    logging.Component("lock").With("key", key),
	}
}

// Handle is an acquired lock. Release is safe to call more than once.
type Handle struct {
	locker *Locker
	token  string
	once   sync.Once
}

// Acquire tries to take the lock, retrying until the wait budget or
// the context expires.
func (l *Locker) Acquire(ctx context.Context, wait time.Duration) (*Handle, error) {
	token := uuid.New().String()
	deadline := time.Now().Add(wait)
	attempt := 0

	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", l.key, err)
		}
		if ok {
			if attempt > 0 {
				l.log.Info("lock acquired after contention", "attempts", attempt+1)
			}
			return &Handle{locker: l, token: token}, nil
		}

		attempt++
		if m := metrics.Get(); m != nil {
			m.LockContention.Inc()
		}
		if time.Now().After(deadline) {
			l.log.Warn("lock wait budget exhausted", "attempts", attempt)
			return nil, ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval(attempt)):
		}
	}
}

// retryInterval backs off linearly up to two seconds between probes.
func retryInterval(attempt int) time.Duration {
	d := time.Duration(attempt) * 250 * time.Millisecond
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}

// Release frees the lock if this handle still owns it. A lock stolen
// after TTL expiry is left alone.
func (h *Handle) Release(ctx context.Context) error {
	if h == nil {
		return nil
	}
	var err error
	h.once.Do(func() {
		var n int64
		n, err = releaseScript.Run(ctx, h.locker.client, []string{h.locker.key}, h.token).Int64()
		if err != nil {
			err = fmt.Errorf("release lock %s: %w", h.locker.key, err)
			return
		}
		if n == 0 {
			h.locker.log.Warn("lock expired before release; possible overlong run")
		}
	})
	return err
}
