package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/parquet-go/parquet-go"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver

	"github.com/metscube/shipsync/internal/config"
	"github.com/metscube/shipsync/internal/export"
	"github.com/metscube/shipsync/internal/logging"
)

// Archiver writes finished batches to a blob bucket as parquet plus a
// per-run manifest. A nil Archiver is a no-op.
type Archiver struct {
	bucket  *blob.Bucket
	prefix  string
	version string
	log     *slog.Logger
}

// New opens the archive bucket. Returns (nil, nil) when archiving is
// disabled.
func New(ctx context.Context, cfg config.ArchiveConfig, version string) (*Archiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	bucket, err := blob.OpenBucket(ctx, cfg.BucketURL)
	if err != nil {
		return nil, fmt.Errorf("open archive bucket %s: %w", cfg.BucketURL, err)
	}
	return &Archiver{
		bucket:  bucket,
		prefix:  cfg.Prefix,
		version: version,
		log:     logging.Component("archive"),
	}, nil
}

// ArchiveRun serializes the run's rows to parquet and uploads the file
// and its manifest. Keys are date-partitioned under the configured
// prefix.
func (a *Archiver) ArchiveRun(ctx context.Context, runID, mode string, rows []export.Row) error {
	if a == nil || len(rows) == 0 {
		return nil
	}

	now := time.Now().UTC()
	records := make([]ShipmentRow, len(rows))
	for i, r := range rows {
		records[i] = fromExportRow(r, now)
	}

	data, err := serialize(records)
	if err != nil {
		return fmt.Errorf("serialize parquet: %w", err)
	}

	dir := fmt.Sprintf("%sdate=%s/run-%s", a.prefix, now.Format("2006-01-02"), runID)
	fileKey := dir + "/shipments.parquet"
	if err := a.writeObject(ctx, fileKey, data); err != nil {
		return fmt.Errorf("write parquet %s: %w", fileKey, err)
	}

	manifest := Manifest{
		RunID:      runID,
		Mode:       mode,
		File:       "shipments.parquet",
		Checksum:   ComputeChecksum(data),
		RowCount:   int64(len(records)),
		ByteSize:   int64(len(data)),
		AppVersion: a.version,
		CreatedAt:  now,
	}
	manifestBytes, err := json.MarshalIndent(&manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := a.writeObject(ctx, dir+"/_manifest.json", manifestBytes); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	a.log.Info("run archived",
		"run_id", runID,
		"rows", len(records),
		"bytes", len(data),
		"checksum", manifest.Checksum,
	)
	return nil
}

func (a *Archiver) writeObject(ctx context.Context, key string, data []byte) error {
	w, err := a.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}
	return nil
}

// Close releases the bucket connection.
func (a *Archiver) Close() error {
	if a == nil || a.bucket == nil {
		return nil
	}
	return a.bucket.Close()
}

func serialize(records []ShipmentRow) ([]byte, error) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[ShipmentRow](&buf, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(records); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
