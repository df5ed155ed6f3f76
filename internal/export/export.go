// Package export writes accepted records to a single JSON document.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Kll222/tmdb-tracker/internal/media"
)

// DefaultPath is where the export file lands relative to the working directory.
const DefaultPath = "output/output.json"

// Writer serialises record batches to a JSON file, replacing earlier exports.
type Writer struct {
	fs   afero.Fs
	path string
}

// NewWriter creates a Writer. A nil fs selects the OS file system.
func NewWriter(fs afero.Fs, path string) *Writer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if path == "" {
		path = DefaultPath
	}
	return &Writer{fs: fs, path: path}
}

// Path returns the export file path.
func (w *Writer) Path() string {
	return w.path
}

// Write implements the pipeline sink. It always rewrites the whole file.
func (w *Writer) Write(ctx context.Context, records []media.Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := Encode(records)
	if err != nil {
		return 0, err
	}

	if err := w.fs.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return 0, fmt.Errorf("creating export directory: %w", err)
	}
	tmp := w.path + ".tmp"
	if err := afero.WriteFile(w.fs, tmp, data, 0o644); err != nil {
		return 0, fmt.Errorf("writing export: %w", err)
	}
	if err := w.fs.Rename(tmp, w.path); err != nil {
		return 0, fmt.Errorf("replacing export: %w", err)
	}
	return len(records), nil
}

// Encode renders records as an indented JSON array with non-ASCII and HTML
// characters left as-is.
func Encode(records []media.Record) ([]byte, error) {
	if records == nil {
		records = []media.Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encoding export: %w", err)
	}
	return buf.Bytes(), nil
}

// Read loads an export file.
func Read(fs afero.Fs, path string) ([]media.Record, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading export: %w", err)
	}
	var records []media.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing export %s: %w", path, err)
	}
	return records, nil
}
