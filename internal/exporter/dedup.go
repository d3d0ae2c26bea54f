package exporter

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/metscube/shipsync/internal/logging"
)

const dedupKeyPrefix = "shipsync:seen:"

// deduper suppresses shipments already exported by a recent run. The
// lookback window re-fetches overlap on purpose, so each shipment id
// is recorded in Redis with a TTL covering two windows. Ids are only
// recorded after their rows are durably written; a failed batch leaves
// them unrecorded so the next run picks them up again. The run lock
// serializes runs, so the check and the later claim cannot race. A nil
// deduper passes everything through.
type deduper struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func newDeduper(client *redis.Client, ttl time.Duration) *deduper {
	if client == nil {
		return nil
	}
	return &deduper{
		client: client,
		ttl:    ttl,
		log:    logging.Component("dedup"),
	}
}

// seen reports whether a recent run already exported the shipment.
// Redis errors fail open: a duplicate row is preferable to a dropped
// one.
func (d *deduper) seen(ctx context.Context, shipmentID string) bool {
	if d == nil || shipmentID == "" {
		return false
	}
	n, err := d.client.Exists(ctx, dedupKeyPrefix+shipmentID).Result()
	if err != nil {
		d.log.Warn("dedup check failed, passing shipment through", "shipment_id", shipmentID, "error", err)
		return false
	}
	return n > 0
}

// claim records shipment ids whose rows are now durably written.
// Errors are logged and swallowed; the worst case is a duplicate row
// on the next overlapping run.
func (d *deduper) claim(ctx context.Context, shipmentIDs []string) {
	if d == nil || len(shipmentIDs) == 0 {
		return
	}
	pipe := d.client.Pipeline()
	for _, id := range shipmentIDs {
		if id == "" {
			continue
		}
		pipe.Set(ctx, dedupKeyPrefix+id, 1, d.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		d.log.Warn("failed to record exported shipments", "count", len(shipmentIDs), "error", err)
	}
}
