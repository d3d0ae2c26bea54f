package checkpoint

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testManager(t *testing.T) Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewManager(Config{
		Enabled: true,
		Key:     "test:backfill:checkpoint",
		TTL:     time.Hour,
	}, client)
}

func TestManager_LoadWithoutCheckpoint(t *testing.T) {
	m := testManager(t)
	if _, err := m.Load(context.Background()); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("Load on empty store = %v, want ErrNoCheckpoint", err)
	}
}

func TestManager_SaveAndLoadRoundTrip(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cp := &Checkpoint{
		RunID:       "abc123",
		RangeStart:  start,
		RangeEnd:    start.Add(10 * 24 * time.Hour),
		Cursor:      start.Add(2 * 24 * time.Hour),
		RowsWritten: 1200,
		ChunksDone:  2,
	}
	if err := m.Save(ctx, cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.RunID != "abc123" || got.ChunksDone != 2 || got.RowsWritten != 1200 {
		t.Errorf("Load = %+v", got)
	}
	if !got.Cursor.Equal(cp.Cursor) {
		t.Errorf("cursor = %s, want %s", got.Cursor, cp.Cursor)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("Save should stamp UpdatedAt")
	}
}

func TestManager_SaveRejectsCursorRegression(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cp := &Checkpoint{
		RunID:      "abc123",
		RangeStart: start,
		RangeEnd:   start.Add(10 * 24 * time.Hour),
		Cursor:     start.Add(3 * 24 * time.Hour),
	}
	if err := m.Save(ctx, cp); err != nil {
		t.Fatalf("initial Save: %v", err)
	}

	behind := *cp
	behind.Cursor = start.Add(24 * time.Hour)
	err := m.Save(ctx, &behind)
	if err == nil {
		t.Fatal("Save with an earlier cursor must be rejected")
	}
	if !strings.Contains(err.Error(), "regress") {
		t.Errorf("err = %v, want cursor regression", err)
	}

	// The stored cursor is untouched.
	got, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Cursor.Equal(cp.Cursor) {
		t.Errorf("cursor = %s, want %s after rejected save", got.Cursor, cp.Cursor)
	}

	// Moving forward still works.
	ahead := *cp
	ahead.Cursor = start.Add(5 * 24 * time.Hour)
	if err := m.Save(ctx, &ahead); err != nil {
		t.Errorf("Save with a later cursor: %v", err)
	}
}

func TestManager_ClearRemovesCheckpoint(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := m.Save(ctx, &Checkpoint{RangeStart: start, RangeEnd: start.Add(time.Hour), Cursor: start}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := m.Load(ctx); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("Load after Clear = %v, want ErrNoCheckpoint", err)
	}
}

func TestNewManager_DisabledIsNoop(t *testing.T) {
	m := NewManager(Config{Enabled: false}, nil)
	ctx := context.Background()

	if err := m.Save(ctx, &Checkpoint{}); err != nil {
		t.Errorf("noop Save: %v", err)
	}
	if _, err := m.Load(ctx); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("noop Load = %v, want ErrNoCheckpoint", err)
	}
}
