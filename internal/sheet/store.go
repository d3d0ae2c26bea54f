// Package sheet provides the append-only export sheet: a row/column
// addressed tabular store with local-file and bucket-object backends,
// and the idempotent batch writer that feeds it.
package sheet

import (
	"fmt"
)

// Store is a sheet-like tabular store. Rows and columns are 1-based;
// row 1 is the header. Writes are buffered until Flush, which makes
// every acknowledged write durable.
type Store interface {
	// LastRow returns the last non-empty row, 0 for an empty sheet.
	LastRow() int

	// MaxRows returns the allocated row capacity.
	MaxRows() int

	// InsertRowsAfter grows the allocation by n empty rows after the
	// given row.
	InsertRowsAfter(after, n int) error

	// WriteRows bulk-writes rows starting at startRow. Fails without
	// partial effect if the range exceeds the allocation.
	WriteRows(startRow int, rows [][]string) error

	// AppendRow writes a single row after the current last row,
	// growing the allocation if needed.
	AppendRow(cells []string) error

	// Cell reads one cell; empty string when out of range.
	Cell(row, col int) string

	// DeleteRow removes a row, shifting later rows up.
	DeleteRow(row int) error

	// MarkRow attaches a cosmetic marker to a row. Idempotent.
	MarkRow(row int, marker string) error

	// Flush persists all buffered changes.
	Flush() error

	Close() error
}

// Config selects and configures a sheet backend.
type Config struct {
	Backend   string // "local" | "blob"
	LocalPath string
	BucketURL string
	ObjectKey string
}

// NewStore creates a sheet store based on configuration.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "local":
		if cfg.LocalPath == "" {
			return nil, fmt.Errorf("LocalPath required for local backend")
		}
		return OpenLocal(cfg.LocalPath)
	case "blob":
		if cfg.BucketURL == "" || cfg.ObjectKey == "" {
			return nil, fmt.Errorf("BucketURL and ObjectKey required for blob backend")
		}
		return OpenBlob(cfg.BucketURL, cfg.ObjectKey)
	default:
		return nil, fmt.Errorf("unknown sheet backend: %s", cfg.Backend)
	}
}
