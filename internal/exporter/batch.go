package exporter

import "github.com/metscube/shipsync/internal/export"

// rowBatcher accumulates rows into fixed-size write batches so a
// mid-run failure loses at most one batch of work.
type rowBatcher struct {
	size int
	buf  []export.Row
}

func newRowBatcher(size int) *rowBatcher {
	return &rowBatcher{size: size}
}

func (b *rowBatcher) Add(row export.Row) {
	b.buf = append(b.buf, row)
}

func (b *rowBatcher) Ready() bool {
	return b.size > 0 && len(b.buf) >= b.size
}

func (b *rowBatcher) Len() int {
	return len(b.buf)
}

func (b *rowBatcher) Flush() []export.Row {
	rows := b.buf
	b.buf = nil
	return rows
}
