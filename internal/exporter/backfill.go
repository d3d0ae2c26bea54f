package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/metscube/shipsync/internal/alert"
	"github.com/metscube/shipsync/internal/checkpoint"
	"github.com/metscube/shipsync/internal/lock"
	"github.com/metscube/shipsync/internal/logging"
)

// chunkWindow is the date span processed per backfill chunk. Each
// chunk advances the checkpoint, so an interrupted backfill loses at
// most one chunk of progress.
const chunkWindow = 24 * time.Hour

// RunBackfill re-imports shipments over [rangeStart, rangeEnd) in
// resumable chunks. When the execution budget runs out mid-range, the
// checkpoint is persisted and the run returns Paused-for-reschedule;
// the caller reinvokes later and the run resumes from the cursor.
func (e *Exporter) RunBackfill(ctx context.Context, rangeStart, rangeEnd time.Time) Summary {
	runID := uuid.New().String()[:8]
	log := logging.RunLogger(e.log, runID, "backfill")
	started := time.Now()

	summary := Summary{RunID: runID, Mode: "backfill", State: StateRunning}

	if !rangeStart.Before(rangeEnd) {
		return e.fail(ctx, log, summary, started, fmt.Errorf("invalid backfill range: %s >= %s",
			rangeStart.Format(time.RFC3339), rangeEnd.Format(time.RFC3339)))
	}

	handle, err := e.acquireLock(ctx)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			log.Info("another run holds the lock, abandoning")
			summary.State = StateIdle
			return summary
		}
		return e.fail(ctx, log, summary, started, fmt.Errorf("acquire lock: %w", err))
	}
	defer handle.Release(context.WithoutCancel(ctx))

	dl := newDeadline(e.cfg.Run.BackfillMaxExecution, log)

	cp, err := e.resumePoint(ctx, runID, rangeStart, rangeEnd, log)
	if err != nil {
		return e.fail(ctx, log, summary, started, err)
	}

	sess, err := e.openSession(ctx, runID)
	if err != nil {
		return e.fail(ctx, log, summary, started, err)
	}

	cursor := cp.Cursor
	for cursor.Before(rangeEnd) {
		if dl.shouldStop() {
			return e.pause(ctx, log, summary, started, cp, cursor)
		}

		chunkEnd := cursor.Add(chunkWindow)
		if chunkEnd.After(rangeEnd) {
			chunkEnd = rangeEnd
		}

		log.Info("processing backfill chunk",
			"from", cursor.Format(time.RFC3339),
			"to", chunkEnd.Format(time.RFC3339),
		)

		// Backfill windows never overlap, so duplicates cannot arise
		// from re-fetch; dedup is left to the date cursor itself.
		res := e.processWindow(ctx, sess, dl, nil, cursor, chunkEnd, "backfill", log)
		summary.Pages += res.pages
		summary.Processed += res.processed
		summary.RowsWritten += res.rowsWritten
		summary.Degraded = summary.Degraded || res.degraded

		if res.err != nil {
			summary.Err = res.err
			// Persist progress through the last completed chunk before
			// failing, so a retry does not redo finished work.
			e.saveCheckpoint(ctx, cp, cursor, summary, log)
			return e.fail(ctx, log, summary, started, res.err)
		}

		if res.stopped {
			return e.pause(ctx, log, summary, started, cp, cursor)
		}

		cursor = chunkEnd
		cp.ChunksDone++
		e.saveCheckpoint(ctx, cp, cursor, summary, log)

		e.archiveRows(ctx, runID, "backfill", res.archived, log)
	}

	if err := e.deps.Checkpoint.Clear(ctx); err != nil {
		log.Warn("failed to clear checkpoint", "error", err)
	}

	summary.State = StateCompleted
	summary.Duration = time.Since(started)
	e.recordRun(summary)
	log.Info("backfill completed",
		"chunks", cp.ChunksDone,
		"rows_written", summary.RowsWritten,
		"degraded", summary.Degraded,
		"duration", summary.Duration.Round(time.Millisecond),
	)
	return summary
}

// resumePoint loads the persisted checkpoint for this range, or starts
// a fresh one at rangeStart. A checkpoint for a different range is
// discarded.
func (e *Exporter) resumePoint(ctx context.Context, runID string, rangeStart, rangeEnd time.Time, log *slog.Logger) (*checkpoint.Checkpoint, error) {
	cp, err := e.deps.Checkpoint.Load(ctx)
	if err != nil {
		if !errors.Is(err, checkpoint.ErrNoCheckpoint) {
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
		return &checkpoint.Checkpoint{
			RunID:      runID,
			RangeStart: rangeStart,
			RangeEnd:   rangeEnd,
			Cursor:     rangeStart,
		}, nil
	}

	if !cp.RangeStart.Equal(rangeStart) || !cp.RangeEnd.Equal(rangeEnd) {
		log.Info("checkpoint is for a different range, starting fresh",
			"old_start", cp.RangeStart.Format(time.RFC3339),
			"old_end", cp.RangeEnd.Format(time.RFC3339),
		)
		if err := e.deps.Checkpoint.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clear stale checkpoint: %w", err)
		}
		return &checkpoint.Checkpoint{
			RunID:      runID,
			RangeStart: rangeStart,
			RangeEnd:   rangeEnd,
			Cursor:     rangeStart,
		}, nil
	}

	log.Info("resuming from checkpoint",
		"cursor", cp.Cursor.Format(time.RFC3339),
		"chunks_done", cp.ChunksDone,
	)
	return cp, nil
}

func (e *Exporter) saveCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint, cursor time.Time, summary Summary, log *slog.Logger) {
	cp.Cursor = cursor
	cp.RowsWritten = int64(summary.RowsWritten)
	if err := e.deps.Checkpoint.Save(ctx, cp); err != nil {
		log.Warn("failed to save checkpoint", "error", err)
	}
}

// pause persists progress and hands the rest of the range to the next
// scheduled invocation.
func (e *Exporter) pause(ctx context.Context, log *slog.Logger, summary Summary, started time.Time, cp *checkpoint.Checkpoint, cursor time.Time) Summary {
	e.saveCheckpoint(ctx, cp, cursor, summary, log)

	summary.State = StatePaused
	summary.Duration = time.Since(started)
	e.recordRun(summary)
	log.Info("backfill paused for reschedule",
		"cursor", cursor.Format(time.RFC3339),
		"rows_written", summary.RowsWritten,
	)
	e.deps.Notifier.Notify(ctx, alert.Event{
		RunID:    summary.RunID,
		Mode:     summary.Mode,
		Severity: "info",
		Message:  "backfill paused for reschedule",
		Details:  fmt.Sprintf("cursor at %s", cursor.Format(time.RFC3339)),
	})
	return summary
}
