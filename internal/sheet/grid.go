package sheet

import (
	"fmt"
)

// defaultCapacity is the row allocation of a freshly created sheet.
const defaultCapacity = 1000

// grid holds the in-memory sheet state shared by all backends. Rows
// are stored 0-based internally; the Store API is 1-based.
type grid struct {
	rows     [][]string
	capacity int
	marks    map[int]string // row -> marker
}

func newGrid() *grid {
	return &grid{
		capacity: defaultCapacity,
		marks:    map[int]string{},
	}
}

func (g *grid) LastRow() int {
	return len(g.rows)
}

func (g *grid) MaxRows() int {
	if g.capacity < len(g.rows) {
		return len(g.rows)
	}
	return g.capacity
}

func (g *grid) InsertRowsAfter(after, n int) error {
	if n <= 0 {
		return fmt.Errorf("insert count must be positive, got %d", n)
	}
	g.capacity = g.MaxRows() + n
	return nil
}

func (g *grid) WriteRows(startRow int, rows [][]string) error {
	if startRow < 1 {
		return fmt.Errorf("start row %d out of range", startRow)
	}
	end := startRow + len(rows) - 1
	if end > g.MaxRows() {
		return fmt.Errorf("write range %d-%d exceeds allocation of %d rows", startRow, end, g.MaxRows())
	}
	for i, cells := range rows {
		g.setRow(startRow+i, cells)
	}
	return nil
}

func (g *grid) AppendRow(cells []string) error {
	target := len(g.rows) + 1
	if target > g.MaxRows() {
		g.capacity = g.MaxRows() + 1
	}
	g.setRow(target, cells)
	return nil
}

func (g *grid) setRow(row int, cells []string) {
	for len(g.rows) < row {
		g.rows = append(g.rows, nil)
	}
	copied := make([]string, len(cells))
	copy(copied, cells)
	g.rows[row-1] = copied
}

func (g *grid) Cell(row, col int) string {
	if row < 1 || row > len(g.rows) || col < 1 {
		return ""
	}
	cells := g.rows[row-1]
	if col > len(cells) {
		return ""
	}
	return cells[col-1]
}

func (g *grid) DeleteRow(row int) error {
	if row < 1 || row > len(g.rows) {
		return fmt.Errorf("row %d out of range", row)
	}
	g.rows = append(g.rows[:row-1], g.rows[row:]...)

	// Shift markers to follow their rows.
	shifted := make(map[int]string, len(g.marks))
	for r, m := range g.marks {
		switch {
		case r < row:
			shifted[r] = m
		case r > row:
			shifted[r-1] = m
		}
	}
	g.marks = shifted
	return nil
}

func (g *grid) MarkRow(row int, marker string) error {
	if row < 1 || row > len(g.rows) {
		return fmt.Errorf("row %d out of range", row)
	}
	g.marks[row] = marker
	return nil
}
