package sheet

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/gzip"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver
)

// BlobStore persists the sheet as a gzip-compressed CSV object in a
// bucket, with a sidecar meta object for allocation and markers. The
// whole sheet is loaded at open and written back on Flush; the export
// sheet is small enough that a snapshot round-trip per run is cheap.
type BlobStore struct {
	*grid
	bucket *blob.Bucket
	key    string
}

// OpenBlob opens a bucket-backed sheet. bucketURL uses gocloud syntax
// (s3://bucket?region=..., gs://bucket, file:///dir).
func OpenBlob(bucketURL, key string) (*BlobStore, error) {
	ctx := context.Background()

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open sheet bucket %s: %w", bucketURL, err)
	}

	s := &BlobStore{grid: newGrid(), bucket: bucket, key: key}
	if err := s.load(ctx); err != nil {
		bucket.Close()
		return nil, err
	}
	return s, nil
}

func (s *BlobStore) metaKey() string {
	return s.key + ".meta.json"
}

func (s *BlobStore) load(ctx context.Context) error {
	r, err := s.bucket.NewReader(ctx, s.key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil
		}
		return fmt.Errorf("open sheet object %s: %w", s.key, err)
	}
	defer r.Close()

	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("decompress sheet object %s: %w", s.key, err)
	}
	defer gz.Close()

	reader := csv.NewReader(gz)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("parse sheet object %s: %w", s.key, err)
	}
	s.grid.rows = append(s.grid.rows, records...)

	return s.loadMeta(ctx)
}

func (s *BlobStore) loadMeta(ctx context.Context) error {
	data, err := s.bucket.ReadAll(ctx, s.metaKey())
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
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

// Flush writes the sheet and meta objects back to the bucket. Bucket
// writes are atomic per object.
func (s *BlobStore) Flush() error {
	ctx := context.Background()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	w := csv.NewWriter(gz)
	for _, row := range s.grid.rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("encode sheet row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode sheet: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("compress sheet: %w", err)
	}

	if err := s.writeObject(ctx, s.key, buf.Bytes()); err != nil {
		return err
	}

	meta := localMeta{Capacity: s.grid.capacity, Marks: map[string]string{}}
	for row, marker := range s.grid.marks {
		meta.Marks[strconv.Itoa(row)] = marker
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sheet meta: %w", err)
	}
	return s.writeObject(ctx, s.metaKey(), data)
}

func (s *BlobStore) writeObject(ctx context.Context, key string, data []byte) error {
	w, err := s.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}
	return nil
}

// Close flushes and releases the bucket handle.
func (s *BlobStore) Close() error {
	if err := s.Flush(); err != nil {
		s.bucket.Close()
		return err
	}
	return s.bucket.Close()
}
