package reader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/unijord/cdmcheck/pkg/record"
)

// CSVReader reads a CSV file whose first line names the columns. Every cell
// is passed through as a string; empty cells stay "".
type CSVReader struct {
	csv      *csv.Reader
	closer   io.Closer
	header   []string
	idColumn string
	index    int
}

// NewCSVReader reads the header line of r. It fails on an empty input or a
// header that repeats a column.
func NewCSVReader(r io.Reader, idColumn string) (*CSVReader, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read csv header: empty input")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	names := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		if i == 0 {
			h = trimBOM(h)
		}
		if _, dup := seen[h]; dup {
			return nil, fmt.Errorf("read csv header: duplicate column %q", h)
		}
		seen[h] = struct{}{}
		names[i] = h
	}

	return &CSVReader{
		csv:      cr,
		closer:   closerOf(r),
		header:   names,
		idColumn: idColumn,
	}, nil
}

// Header returns the column names in file order.
func (r *CSVReader) Header() []string {
	out := make([]string, len(r.header))
	copy(out, r.header)
	return out
}

func (r *CSVReader) Next() (Row, error) {
	fields, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Row{}, io.EOF
		}
		return Row{}, fmt.Errorf("read csv row %d: %w", r.index+1, err)
	}
	r.index++

	values := make(record.Record, len(fields))
	for i, v := range fields {
		values[r.header[i]] = v
	}
	return Row{Index: r.index, ID: rowID(values, r.idColumn), Values: values}, nil
}

func (r *CSVReader) Close() error {
	return r.closer.Close()
}

func trimBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
