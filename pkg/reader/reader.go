// Package reader streams raw rows out of CSV, JSON lines and Avro files.
//
// Readers never interpret values against a schema; they hand the validator
// what the file holds. Row indices are 1-based and count data rows only.
package reader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/unijord/cdmcheck/pkg/record"
)

// ErrUnknownFormat is returned by Open for a format it cannot read.
var ErrUnknownFormat = errors.New("unknown input format")

// Format names accepted by Open.
const (
	FormatCSV  = "csv"
	FormatJSON = "jsonl"
	FormatAvro = "avro"
)

// Row is one raw input row.
type Row struct {
	Index  int
	ID     string
	Values record.Record
}

// Reader yields rows until it returns io.EOF.
type Reader interface {
	Next() (Row, error)
	Close() error
}

// DetectFormat maps a file extension onto a format name.
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON, nil
	case ".avro":
		return FormatAvro, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Open opens path with the reader for format. An empty format is detected from
// the extension. idColumn names the column copied into Row.ID.
func Open(path, format, idColumn string) (Reader, error) {
	if format == "" {
		var err error
		if format, err = DetectFormat(path); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}

	var r Reader
	switch strings.ToLower(format) {
	case FormatCSV:
		r, err = NewCSVReader(f, idColumn)
	case FormatJSON, "json", "ndjson":
		r = NewJSONReader(f, idColumn)
	case FormatAvro:
		r, err = NewAvroReader(f, idColumn)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func rowID(values record.Record, idColumn string) string {
	if idColumn == "" {
		return ""
	}
	return record.Format(values[idColumn])
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func closerOf(r io.Reader) io.Closer {
	if c, ok := r.(io.Closer); ok {
		return c
	}
	return nopCloser{}
}
