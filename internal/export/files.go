// Package export writes each round's capture and capture timestamp as flat
// per-round files, locally and optionally mirrored to an object store.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sbinet/npyio"

	"github.com/RMahshie/wavescope/pkg/models"
)

// Format is the capture file format.
type Format string

const (
	FormatCSV Format = "csv"
	FormatNPY Format = "npy"
)

// ParseFormat accepts "csv" or "npy", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatNPY:
		return f, nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want csv or npy)", s)
	}
}

// TimestampLayout renders capture times as ISO-8601 UTC with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// DataFileName is the capture file of a round, e.g. data3.csv.
func DataFileName(round int, f Format) string {
	return fmt.Sprintf("data%d.%s", round, f)
}

// TimeFileName is the timestamp file of a round, e.g. time3.csv.
func TimeFileName(round int) string {
	return fmt.Sprintf("time%d.csv", round)
}

// ResolveDir substitutes {date} in template with the date of at as YYYY-MM-DD.
func ResolveDir(template string, at time.Time) string {
	return strings.ReplaceAll(template, "{date}", at.Format("2006-01-02"))
}

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// EncodeData renders a capture in the given format.
func EncodeData(rec *models.AcquisitionRecord, f Format) ([]byte, error) {
	var buf bytes.Buffer
	switch f {
	case FormatNPY:
		if err := npyio.Write(&buf, rec.Samples); err != nil {
			return nil, fmt.Errorf("failed to encode npy: %w", err)
		}
	case FormatCSV:
		w := csv.NewWriter(&buf)
		header := []string{"Time (s)", fmt.Sprintf("Channel %d (V)", rec.Channel)}
		if err := w.Write(header); err != nil {
			return nil, err
		}
		row := make([]string, 2)
		for k, v := range rec.Samples {
			row[0] = strconv.FormatFloat(float64(k)/rec.SampleRate, 'g', -1, 64)
			row[1] = strconv.FormatFloat(v, 'g', -1, 64)
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("failed to encode csv: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown export format %q", f)
	}
	return buf.Bytes(), nil
}

// FileExporter writes data{i} and time{i}.csv into one directory.
type FileExporter struct {
	dir    string
	format Format
}

// NewFileExporter returns an exporter into dir. The directory is created on
// first export.
func NewFileExporter(dir string, f Format) (*FileExporter, error) {
	if dir == "" {
		return nil, fmt.Errorf("export directory is required")
	}
	if f != FormatCSV && f != FormatNPY {
		return nil, fmt.Errorf("unknown export format %q", f)
	}
	return &FileExporter{dir: dir, format: f}, nil
}

// Dir returns the output directory.
func (e *FileExporter) Dir() string { return e.dir }

// Export writes the capture, then its timestamp.
func (e *FileExporter) Export(ctx context.Context, rec *models.AcquisitionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(e.dir, 0o775); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	data, err := EncodeData(rec, e.format)
	if err != nil {
		return err
	}
	dataPath := filepath.Join(e.dir, DataFileName(rec.Round, e.format))
	if err := os.WriteFile(dataPath, data, 0o664); err != nil {
		return fmt.Errorf("failed to write %s: %w", dataPath, err)
	}

	timePath := filepath.Join(e.dir, TimeFileName(rec.Round))
	if err := os.WriteFile(timePath, []byte(FormatTimestamp(rec.Timestamp)), 0o664); err != nil {
		return fmt.Errorf("failed to write %s: %w", timePath, err)
	}
	return nil
}
