// Package export writes the denormalized exhibition snapshot consumed
// downstream.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
	"github.com/JakeFAU/exhibitions-crawler/internal/store"
)

// DefaultPath is the object path used when none is configured.
const DefaultPath = "exhibitions.json"

// Source provides the rows to export.
type Source interface {
	Snapshot(ctx context.Context) ([]store.SnapshotEntry, error)
}

// Writer serializes snapshot exports so concurrent site saves never
// interleave partial files.
type Writer struct {
	mu     sync.Mutex
	source Source
	blobs  crawler.BlobStore
	path   string
	logger *zap.Logger
}

// New builds a Writer.
func New(source Source, blobs crawler.BlobStore, path string, logger *zap.Logger) *Writer {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{source: source, blobs: blobs, path: path, logger: logger}
}

// Export writes the full snapshot as a JSON array and returns its location
// and row count.
func (w *Writer) Export(ctx context.Context) (string, int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows, err := w.source.Snapshot(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("load snapshot: %w", err)
	}
	if rows == nil {
		rows = []store.SnapshotEntry{}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("encode snapshot: %w", err)
	}
	location, err := w.blobs.PutObject(ctx, w.path, "application/json", data)
	if err != nil {
		return "", 0, fmt.Errorf("write snapshot: %w", err)
	}
	w.logger.Debug("snapshot exported", zap.String("location", location), zap.Int("rows", len(rows)))
	return location, len(rows), nil
}
