package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestAcquire_MutualExclusion(t *testing.T) {
	_, client := testRedis(t)
	l := NewLocker(client, "test:run:lock", time.Minute)
	ctx := context.Background()

	h, err := l.Acquire(ctx, 0)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	if _, err := l.Acquire(ctx, 0); !errors.Is(err, ErrNotAcquired) {
		t.Errorf("second Acquire = %v, want ErrNotAcquired", err)
	}

	if err := h.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	h2, err := l.Acquire(ctx, 0)
	if err != nil {
		t.Errorf("Acquire after release: %v", err)
	}
	h2.Release(ctx)
}

func TestRelease_LeavesStolenLockAlone(t *testing.T) {
	mr, client := testRedis(t)
	l := NewLocker(client, "test:run:lock", time.Minute)
	ctx := context.Background()

	h, err := l.Acquire(ctx, 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// TTL expires mid-run and another run takes the lock.
	mr.FastForward(2 * time.Minute)
	h2, err := l.Acquire(ctx, 0)
	if err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}

	// The stale handle must not free the new owner's lock.
	if err := h.Release(ctx); err != nil {
		t.Fatalf("stale Release: %v", err)
	}
	if _, err := l.Acquire(ctx, 0); !errors.Is(err, ErrNotAcquired) {
		t.Errorf("lock should still be held by the new owner, got %v", err)
	}
	h2.Release(ctx)
}

func TestRelease_NilHandleIsNoop(t *testing.T) {
	var h *Handle
	if err := h.Release(context.Background()); err != nil {
		t.Errorf("nil Release: %v", err)
	}
}
