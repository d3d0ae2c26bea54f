package sheet

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/metscube/shipsync/internal/export"
	"github.com/metscube/shipsync/internal/logging"
	"github.com/metscube/shipsync/internal/metrics"
)

const (
	// PlaceholderText marks a "nothing to export" row. The next real
	// batch sweeps these before appending.
	PlaceholderText = "No new shipments found"

	// placeholderScanRows bounds the trailing-row sweep.
	placeholderScanRows = 20

	// growthHeadroom is the extra allocation added beyond the exact
	// shortfall when the sheet runs out of rows.
	growthHeadroom = 10

	// VoidedMarker is the cosmetic marker applied to voided rows.
	VoidedMarker = "voided"
)

// WriteResult reports the outcome of one batch write. Written lists
// the indices into the input batch that were durably placed, in sheet
// order; on a partial fallback it excludes the rows that never landed.
type WriteResult struct {
	Success     bool
	RowsWritten int
	Written     []int
	Err         error
}

// placement records where one input row landed in the sheet.
type placement struct {
	index int // index into the input batch
	row   int // 1-based sheet row
}

// Writer appends export rows to a sheet store idempotently: placeholder
// cleanup, capacity growth, bulk write with per-row fallback, voided
// marking, then a durable flush.
type Writer struct {
	store Store
	log   *slog.Logger
}

// NewWriter creates a batch writer over the given store.
func NewWriter(store Store) *Writer {
	return &Writer{
		store: store,
		log:   logging.Component("writer"),
	}
}

// EnsureHeaders validates and repairs the header row, cell by cell.
func (w *Writer) EnsureHeaders() error {
	if w.store.LastRow() == 0 {
		if err := w.store.AppendRow(export.Headers); err != nil {
			return fmt.Errorf("write header row: %w", err)
		}
	} else {
		repaired := make([]string, len(export.Headers))
		dirty := false
		for i, want := range export.Headers {
			got := strings.TrimSpace(w.store.Cell(1, i+1))
			repaired[i] = got
			if got != want {
				repaired[i] = want
				dirty = true
			}
		}
		if dirty {
			if err := w.store.WriteRows(1, [][]string{repaired}); err != nil {
				return fmt.Errorf("repair header row: %w", err)
			}
		}
	}
	if err := w.store.MarkRow(1, "header"); err != nil {
		return fmt.Errorf("mark header row: %w", err)
	}
	w.log.Info("header row validated")
	return nil
}

// WriteBatch appends a batch of rows. Growth failures fail closed with
// zero rows written; bulk-write failures fall back to per-row appends
// that continue past individual errors.
func (w *Writer) WriteBatch(rows []export.Row) WriteResult {
	if len(rows) == 0 {
		return WriteResult{Success: true}
	}

	swept, err := w.cleanupPlaceholders()
	if err != nil {
		w.log.Warn("placeholder cleanup had issues", "error", err)
	} else if swept > 0 {
		w.log.Debug("removed placeholder rows", "count", swept)
		if m := metrics.Get(); m != nil {
			m.PlaceholdersSwept.Add(float64(swept))
		}
	}

	targetRow := w.store.LastRow() + 1
	rowsNeeded := targetRow + len(rows) - 1
	if rowsNeeded > w.store.MaxRows() {
		rowsToAdd := rowsNeeded - w.store.MaxRows() + growthHeadroom
		w.log.Info("growing sheet allocation", "rows", rowsToAdd)
		if err := w.store.InsertRowsAfter(w.store.MaxRows(), rowsToAdd); err != nil {
			// Fail closed: no rows were written for this batch.
			return WriteResult{Err: fmt.Errorf("grow sheet by %d rows: %w", rowsToAdd, err)}
		}
	}

	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = r.Values()
	}

	if err := w.store.WriteRows(targetRow, cells); err != nil {
		w.log.Warn("bulk write failed, falling back to per-row appends", "error", err)
		if m := metrics.Get(); m != nil {
			m.BatchFallbacks.Inc()
		}
		return w.fallbackAppend(cells, rows)
	}

	placed := make([]placement, len(rows))
	for i := range rows {
		placed[i] = placement{index: i, row: targetRow + i}
	}
	w.markVoided(rows, placed)

	if err := w.store.Flush(); err != nil {
		return WriteResult{Err: fmt.Errorf("flush after bulk write: %w", err)}
	}

	w.validateWrite(targetRow-1, len(rows))
	w.log.Info("batch written", "rows", len(rows))
	return WriteResult{Success: true, RowsWritten: len(rows), Written: indicesOf(placed)}
}

// cleanupPlaceholders removes trailing placeholder rows so the next
// append is contiguous with real data. Only the most recent rows are
// scanned to bound the cost.
func (w *Writer) cleanupPlaceholders() (int, error) {
	lastRow := w.store.LastRow()
	if lastRow < 2 {
		return 0, nil
	}
	stop := lastRow - (placeholderScanRows - 1)
	if stop < 2 {
		stop = 2
	}

	deleted := 0
	for row := lastRow; row >= stop; row-- {
		// The placeholder text lives in the Order Number column.
		if strings.Contains(w.store.Cell(row, 2), PlaceholderText) {
			if err := w.store.DeleteRow(row); err != nil {
				return deleted, fmt.Errorf("delete placeholder row %d: %w", row, err)
			}
			deleted++
		}
	}
	return deleted, nil
}

// fallbackAppend writes rows one at a time, continuing past individual
// failures. A failed append shifts every later row up by one, so the
// actual landing row is recorded per success rather than assumed from
// the batch offset.
func (w *Writer) fallbackAppend(cells [][]string, rows []export.Row) WriteResult {
	var placed []placement
	var firstErr error

	for i, rowCells := range cells {
		if err := w.store.AppendRow(rowCells); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			w.log.Error("failed to append row", "index", i, "error", err)
			continue
		}
		placed = append(placed, placement{index: i, row: w.store.LastRow()})
	}

	w.markVoided(rows, placed)

	if err := w.store.Flush(); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	}

	w.log.Info("fallback complete", "written", len(placed), "total", len(cells))
	return WriteResult{
		Success:     len(placed) > 0,
		RowsWritten: len(placed),
		Written:     indicesOf(placed),
		Err:         firstErr,
	}
}

func indicesOf(placed []placement) []int {
	out := make([]int, len(placed))
	for i, p := range placed {
		out[i] = p.index
	}
	return out
}

// markVoided applies the cosmetic voided marker. Safe to repeat; a
// marking failure never fails the batch.
func (w *Writer) markVoided(rows []export.Row, placed []placement) {
	marked := 0
	for _, p := range placed {
		if !rows[p.index].IsVoided() {
			continue
		}
		if err := w.store.MarkRow(p.row, VoidedMarker); err != nil {
			w.log.Debug("failed to mark voided row", "row", p.row, "error", err)
			continue
		}
		marked++
	}
	if marked > 0 {
		w.log.Debug("marked voided rows", "count", marked)
	}
}

// validateWrite warns (never fails) when the sheet grew by less than
// the expected row count.
func (w *Writer) validateWrite(lastRowBefore, expected int) {
	actual := w.store.LastRow() - lastRowBefore
	if actual < expected {
		w.log.Warn("post-write validation short",
			"expected_rows", expected,
			"actual_rows", actual,
		)
	}
}

// AppendPlaceholder writes the "no new shipments" marker row.
func (w *Writer) AppendPlaceholder(ts time.Time) error {
	cells := make([]string, export.ColumnCount)
	cells[0] = ts.UTC().Format("2006-01-02 15:04:05")
	cells[1] = PlaceholderText
	if err := w.store.AppendRow(cells); err != nil {
		return fmt.Errorf("append placeholder row: %w", err)
	}
	if err := w.store.Flush(); err != nil {
		return fmt.Errorf("flush placeholder row: %w", err)
	}
	return nil
}
