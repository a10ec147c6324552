package export

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/RMahshie/wavescope/pkg/models"
)

// Exporter persists one round's capture.
type Exporter interface {
	Export(ctx context.Context, rec *models.AcquisitionRecord) error
}

// Uploader stores an object under key.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// ContentType returns the MIME type used for a capture format.
func ContentType(f Format) string {
	if f == FormatNPY {
		return "application/octet-stream"
	}
	return "text/csv"
}

// ObjectKeys returns the object keys of a round's data and time files.
func ObjectKeys(prefix string, round int, f Format) (data, timestamp string) {
	return path.Join(prefix, DataFileName(round, f)), path.Join(prefix, TimeFileName(round))
}

// ObjectExporter mirrors captures to an object store under a key prefix.
type ObjectExporter struct {
	up     Uploader
	prefix string
	format Format
}

// NewObjectExporter returns an exporter writing under prefix, e.g. runs/<id>.
func NewObjectExporter(up Uploader, prefix string, f Format) *ObjectExporter {
	return &ObjectExporter{up: up, prefix: prefix, format: f}
}

// Export uploads the capture and its timestamp.
func (e *ObjectExporter) Export(ctx context.Context, rec *models.AcquisitionRecord) error {
	data, err := EncodeData(rec, e.format)
	if err != nil {
		return err
	}
	dataKey, timeKey := ObjectKeys(e.prefix, rec.Round, e.format)
	if err := e.up.Upload(ctx, dataKey, data, ContentType(e.format)); err != nil {
		return fmt.Errorf("failed to upload %s: %w", dataKey, err)
	}
	if err := e.up.Upload(ctx, timeKey, []byte(FormatTimestamp(rec.Timestamp)), "text/csv"); err != nil {
		return fmt.Errorf("failed to upload %s: %w", timeKey, err)
	}
	return nil
}

// Multi exports to every exporter in order, even after one fails.
type Multi []Exporter

// Export returns the joined errors of all exporters.
func (m Multi) Export(ctx context.Context, rec *models.AcquisitionRecord) error {
	var errs []error
	for _, e := range m {
		if err := e.Export(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
