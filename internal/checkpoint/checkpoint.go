// Package checkpoint persists backfill progress so an interrupted run
// can resume from where the previous one stopped.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/metscube/shipsync/internal/metrics"
)

var (
	// ErrNoCheckpoint is returned when no checkpoint exists.
	ErrNoCheckpoint = errors.New("no checkpoint found")
)

// Checkpoint records backfill progress through a date range.
type Checkpoint struct {
	RunID       string    `json:"run_id"`
	RangeStart  time.Time `json:"range_start"`
	RangeEnd    time.Time `json:"range_end"`
	Cursor      time.Time `json:"cursor"`
	RowsWritten int64     `json:"rows_written"`
	ChunksDone  int       `json:"chunks_done"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Manager handles checkpoint persistence and retrieval.
type Manager interface {
	// Load reads the current checkpoint.
	Load(ctx context.Context) (*Checkpoint, error)

	// Save persists the checkpoint. The cursor never moves backward.
	Save(ctx context.Context, cp *Checkpoint) error

	// Clear removes the checkpoint after a completed backfill.
	Clear(ctx context.Context) error
}

// Config configures the checkpoint manager.
type Config struct {
	Enabled bool
	Key     string
	TTL     time.Duration
}

// NewManager creates a checkpoint manager based on configuration.
func NewManager(cfg Config, client *redis.Client) Manager {
	if !cfg.Enabled || client == nil {
		return &noopManager{}
	}
	key := cfg.Key
	if key == "" {
		key = "shipsync:backfill:checkpoint"
	}
	return &redisManager{client: client, key: key, ttl: cfg.TTL}
}

// redisManager persists checkpoints as a JSON value in Redis.
type redisManager struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func (m *redisManager) Load(ctx context.Context) (*Checkpoint, error) {
	data, err := m.client.Get(ctx, m.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	return &cp, nil
}

func (m *redisManager) Save(ctx context.Context, cp *Checkpoint) error {
	prev, err := m.Load(ctx)
	if err != nil && !errors.Is(err, ErrNoCheckpoint) {
		return err
	}
	if prev != nil && cp.Cursor.Before(prev.Cursor) {
		return fmt.Errorf("checkpoint cursor would regress: %s < %s",
			cp.Cursor.Format(time.RFC3339), prev.Cursor.Format(time.RFC3339))
	}

	cp.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := m.client.Set(ctx, m.key, data, m.ttl).Err(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if mt := metrics.Get(); mt != nil {
		mt.SetCheckpointCursor(float64(cp.Cursor.Unix()))
	}
	return nil
}

func (m *redisManager) Clear(ctx context.Context) error {
	if err := m.client.Del(ctx, m.key).Err(); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// noopManager disables checkpointing.
type noopManager struct{}

func (n *noopManager) Load(ctx context.Context) (*Checkpoint, error) {
	return nil, ErrNoCheckpoint
}

func (n *noopManager) Save(ctx context.Context, cp *Checkpoint) error { return nil }
func (n *noopManager) Clear(ctx context.Context) error                { return nil }
