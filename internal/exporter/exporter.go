// Package exporter orchestrates a full export pass: lock acquisition,
// reference snapshot, paginated fetch, transform, batched write, and
// run accounting for both normal and backfill modes.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/metscube/shipsync/internal/alert"
	"github.com/metscube/shipsync/internal/archive"
	"github.com/metscube/shipsync/internal/checkpoint"
	"github.com/metscube/shipsync/internal/config"
	"github.com/metscube/shipsync/internal/export"
	"github.com/metscube/shipsync/internal/lock"
	"github.com/metscube/shipsync/internal/logging"
	"github.com/metscube/shipsync/internal/metrics"
	"github.com/metscube/shipsync/internal/refdata"
	"github.com/metscube/shipsync/internal/sheet"
	"github.com/metscube/shipsync/internal/shipstation"
)

// State is the lifecycle state of one run.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StatePaused    State = "paused_for_reschedule"
	StateFailed    State = "failed"
)

// Summary is the final accounting of one run.
type Summary struct {
	RunID       string
	Mode        string
	State       State
	Pages       int
	Processed   int
	Skipped     int
	RowsWritten int
	Degraded    bool
	Duration    time.Duration
	Err         error
}

// ShipmentLister fetches one page of shipments for a date window.
// *shipstation.Client is the production implementation.
type ShipmentLister interface {
	ListShipments(ctx context.Context, since, until time.Time, page int) (*shipstation.ShipmentsPage, error)
}

// RefLoader builds the reference-data snapshot for a run.
type RefLoader interface {
	Load(ctx context.Context) (*refdata.Refs, error)
}

// PropsReader reads the scalar run configuration snapshot.
type PropsReader interface {
	Snapshot(ctx context.Context) (refdata.RunConfig, error)
}

// Deps bundles the external collaborators of the exporter. Locker,
// Props, Redis, Archiver and Notifier may be nil; the run degrades to
// defaults without them.
type Deps struct {
	API        ShipmentLister
	RefSource  RefLoader
	Props      PropsReader
	Sheet      sheet.Store
	Locker     *lock.Locker
	Checkpoint checkpoint.Manager
	Redis      *redis.Client
	Archiver   *archive.Archiver
	Notifier   *alert.Notifier
}

// Exporter runs export passes over the shipment API.
type Exporter struct {
	cfg  config.Config
	deps Deps
	log  *slog.Logger
}

// New creates an exporter. The sheet store and API client are required;
// the rest degrade gracefully when absent.
func New(cfg config.Config, deps Deps) *Exporter {
	return &Exporter{
		cfg:  cfg,
		deps: deps,
		log:  logging.Component("exporter"),
	}
}

// RunNormal executes one incremental sync over the lookback window.
func (e *Exporter) RunNormal(ctx context.Context) Summary {
	runID := uuid.New().String()[:8]
	log := logging.RunLogger(e.log, runID, "normal")
	started := time.Now()

	summary := Summary{RunID: runID, Mode: "normal", State: StateRunning}

	handle, err := e.acquireLock(ctx)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			// Expected under overlapping schedules. No side effects yet.
			log.Info("another run holds the lock, abandoning")
			summary.State = StateIdle
			return summary
		}
		return e.fail(ctx, log, summary, started, fmt.Errorf("acquire lock: %w", err))
	}
	defer handle.Release(context.WithoutCancel(ctx))

	dl := newDeadline(e.cfg.Run.MaxExecution, log)
	lookback := time.Duration(e.cfg.Run.LookbackMinutes) * time.Minute
	until := time.Now().UTC()
	since := until.Add(-lookback)

	log.Info("run started",
		"since", since.Format(time.RFC3339),
		"until", until.Format(time.RFC3339),
	)

	sess, err := e.openSession(ctx, runID)
	if err != nil {
		return e.fail(ctx, log, summary, started, err)
	}

	dedup := newDeduper(e.deps.Redis, 2*lookback)

	res := e.processWindow(ctx, sess, dl, dedup, since, until, "normal", log)
	summary.Pages = res.pages
	summary.Processed = res.processed
	summary.Skipped = res.skipped
	summary.RowsWritten = res.rowsWritten
	summary.Degraded = res.degraded

	if res.err != nil {
		return e.fail(ctx, log, summary, started, res.err)
	}

	if res.rowsWritten == 0 && !res.degraded {
		if err := sess.writer.AppendPlaceholder(time.Now().UTC()); err != nil {
			log.Warn("failed to write placeholder row", "error", err)
		} else {
			log.Info("no new shipments in window")
		}
	}

	e.archiveRows(ctx, runID, "normal", res.archived, log)

	summary.State = StateCompleted
	summary.Duration = time.Since(started)
	e.recordRun(summary)
	log.Info("run completed",
		"pages", summary.Pages,
		"rows_written", summary.RowsWritten,
		"skipped", summary.Skipped,
		"degraded", summary.Degraded,
		"duration", summary.Duration.Round(time.Millisecond),
	)
	return summary
}

func (e *Exporter) acquireLock(ctx context.Context) (*lock.Handle, error) {
	if e.deps.Locker == nil {
		return nil, nil
	}
	return e.deps.Locker.Acquire(ctx, e.cfg.Run.LockWait)
}

// session carries per-run state built once at run start so every
// component sees one consistent snapshot.
type session struct {
	refs        *refdata.Refs
	runCfg      refdata.RunConfig
	transformer *export.Transformer
	writer      *sheet.Writer
}

func (e *Exporter) openSession(ctx context.Context, runID string) (*session, error) {
	refs, err := e.deps.RefSource.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reference data: %w", err)
	}

	runCfg := refdata.RunConfig{Cartons: refdata.DefaultCartonThresholds()}
	if e.deps.Props != nil {
		runCfg, err = e.deps.Props.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("snapshot run config: %w", err)
		}
	}

	writer := sheet.NewWriter(e.deps.Sheet)
	if err := writer.EnsureHeaders(); err != nil {
		return nil, fmt.Errorf("ensure headers: %w", err)
	}

	return &session{
		refs:        refs,
		runCfg:      runCfg,
		transformer: export.NewTransformer(refs, runCfg),
		writer:      writer,
	}, nil
}

// windowResult accumulates the outcome of processing one date window.
type windowResult struct {
	pages       int
	processed   int
	skipped     int
	rowsWritten int
	degraded    bool
	stopped     bool // budget ran out before the window finished
	archived    []export.Row
	err         error
}

// processWindow pages through [since, until), transforms each shipment
// and writes full batches as they fill. Per-page failures degrade the
// run; a batch-write growth failure stops it.
func (e *Exporter) processWindow(ctx context.Context, s *session, dl *deadline, dedup *deduper, since, until time.Time, mode string, log *slog.Logger) windowResult {
	var res windowResult
	batcher := newRowBatcher(e.cfg.Run.BatchSize)

	page := 1
	totalPages := 0
	for {
		if dl.shouldStop() {
			res.stopped = true
			break
		}

		pageData, err := e.deps.API.ListShipments(ctx, since, until, page)
		if err != nil {
			if ctx.Err() != nil {
				res.err = ctx.Err()
				return res
			}
			// Retries are exhausted inside the client. Skip the page,
			// mark the run degraded, and keep going if we know there
			// are more pages.
			log.Error("page fetch failed", "page", page, "error", err)
			res.degraded = true
			if m := metrics.Get(); m != nil {
				m.RunsDegraded.Inc()
			}
			if totalPages == 0 || page >= totalPages {
				break
			}
			page++
			continue
		}

		res.pages++
		totalPages = pageData.Pages

		for _, shipment := range pageData.Shipments {
			if dedup.seen(ctx, shipment.ShipmentID.String()) {
				res.skipped++
				continue
			}
			row := s.transformer.Transform(shipment)
			batcher.Add(row)
			res.processed++

			if batcher.Ready() {
				if err := e.writeBatch(ctx, s, batcher.Flush(), mode, dedup, &res, log); err != nil {
					res.err = err
					return res
				}
				if dl.shouldStop() {
					res.stopped = true
					break
				}
			}
		}

		if res.stopped || page >= totalPages {
			break
		}
		page++
	}

	if batcher.Len() > 0 {
		if err := e.writeBatch(ctx, s, batcher.Flush(), mode, dedup, &res, log); err != nil {
			res.err = err
		}
	}

	if m := metrics.Get(); m != nil {
		m.AddShipmentsProcessed(mode, float64(res.processed))
		m.AddShipmentsSkipped(mode, float64(res.skipped))
	}
	return res
}

// writeBatch writes one batch through the sheet writer. A fail-closed
// result (growth failure) stops the run with nothing claimed; on any
// other outcome exactly the durably written rows are claimed for dedup
// and queued for the archive. Partial fallback success is recorded as
// degraded.
func (e *Exporter) writeBatch(ctx context.Context, s *session, rows []export.Row, mode string, dedup *deduper, res *windowResult, log *slog.Logger) error {
	batchStart := time.Now()
	wr := s.writer.WriteBatch(rows)
	if m := metrics.Get(); m != nil {
		m.BatchDuration.Observe(time.Since(batchStart).Seconds())
	}

	if !wr.Success {
		return fmt.Errorf("batch write failed closed: %w", wr.Err)
	}
	res.rowsWritten += wr.RowsWritten
	ids := make([]string, 0, len(wr.Written))
	for _, i := range wr.Written {
		res.archived = append(res.archived, rows[i])
		ids = append(ids, rows[i].ShipmentID)
	}
	dedup.claim(ctx, ids)
	if wr.Err != nil {
		log.Warn("batch written partially", "written", wr.RowsWritten, "total", len(rows), "error", wr.Err)
		res.degraded = true
	}
	if m := metrics.Get(); m != nil {
		m.AddRowsWritten(mode, float64(wr.RowsWritten))
		m.IncBatchesWritten(mode)
	}
	return nil
}

func (e *Exporter) archiveRows(ctx context.Context, runID, mode string, rows []export.Row, log *slog.Logger) {
	if e.deps.Archiver == nil || len(rows) == 0 {
		return
	}
	if err := e.deps.Archiver.ArchiveRun(ctx, runID, mode, rows); err != nil {
		log.Warn("archive upload failed", "error", err)
	}
}

// fail finalizes a failed run: accounting, alerting, summary.
func (e *Exporter) fail(ctx context.Context, log *slog.Logger, summary Summary, started time.Time, err error) Summary {
	summary.State = StateFailed
	summary.Err = err
	summary.Duration = time.Since(started)
	e.recordRun(summary)

	log.Error("run failed", "error", err, "duration", summary.Duration.Round(time.Millisecond))
	e.deps.Notifier.Notify(ctx, alert.Event{
		RunID:    summary.RunID,
		Mode:     summary.Mode,
		Severity: "critical",
		Message:  "export run failed",
		Details:  err.Error(),
	})
	return summary
}

func (e *Exporter) recordRun(s Summary) {
	m := metrics.Get()
	if m == nil {
		return
	}
	m.ObserveRunDuration(s.Mode, string(s.State), s.Duration.Seconds())
}
