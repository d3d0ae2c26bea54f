package sheet

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LocalStore persists the sheet as a CSV file with a JSON sidecar for
// allocation and row markers.
type LocalStore struct {
	*grid
	path string
}

type localMeta struct {
	Capacity int               `json:"capacity"`
	Marks    map[string]string `json:"marks,omitempty"`
}

// OpenLocal loads (or creates) a local CSV-backed sheet.
func OpenLocal(path string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create sheet directory: %w", err)
	}

	s := &LocalStore{grid: newGrid(), path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read sheet file %s: %w", path, err)
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse sheet file %s: %w", path, err)
	}
	for _, rec := range records {
		s.grid.rows = append(s.grid.rows, rec)
	}

	if err := s.loadMeta(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *LocalStore) metaPath() string {
	return s.path + ".meta.json"
}

func (s *LocalStore) loadMeta() error {
	data, err := os.ReadFile(s.metaPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read sheet meta: %w", err)
	}
	var meta localMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("parse sheet meta: %w", err)
	}
	if meta.Capacity > s.grid.capacity {
		s.grid.capacity = meta.Capacity
	}
	for rowStr, marker := range meta.Marks {
		if row, err := strconv.Atoi(rowStr); err == nil {
			s.grid.marks[row] = marker
		}
	}
	return nil
}

// Flush writes the grid back atomically (temp file + rename).
func (s *LocalStore) Flush() error {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	for _, row := range s.grid.rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("encode sheet row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode sheet: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("write sheet temp file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename sheet file: %w", err)
	}

	meta := localMeta{Capacity: s.grid.capacity, Marks: map[string]string{}}
	for row, marker := range s.grid.marks {
		meta.Marks[strconv.Itoa(row)] = marker
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sheet meta: %w", err)
	}
	metaTemp := s.metaPath() + ".tmp"
	if err := os.WriteFile(metaTemp, data, 0644); err != nil {
		return fmt.Errorf("write sheet meta: %w", err)
	}
	if err := os.Rename(metaTemp, s.metaPath()); err != nil {
		os.Remove(metaTemp)
		return fmt.Errorf("rename sheet meta: %w", err)
	}
	return nil
}

// Close flushes any remaining state.
func (s *LocalStore) Close() error {
	return s.Flush()
}
