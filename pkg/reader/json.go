package reader

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/unijord/cdmcheck/pkg/record"
)

// JSONReader reads a stream of JSON objects, one per line. Numbers are kept
// as json.Number so integers beyond float precision survive.
type JSONReader struct {
	dec      *json.Decoder
	closer   io.Closer
	idColumn string
	index    int
}

// NewJSONReader creates a reader over r. An empty idColumn leaves Row.ID blank.
func NewJSONReader(r io.Reader, idColumn string) *JSONReader {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &JSONReader{dec: dec, closer: closerOf(r), idColumn: idColumn}
}

func (r *JSONReader) Next() (Row, error) {
	var values map[string]any
	if err := r.dec.Decode(&values); err != nil {
		if errors.Is(err, io.EOF) {
			return Row{}, io.EOF
		}
		return Row{}, fmt.Errorf("decode json row %d: %w", r.index+1, err)
	}
	r.index++
	if values == nil {
		return Row{}, fmt.Errorf("decode json row %d: not an object", r.index)
	}
	rec := record.Record(values)
	return Row{Index: r.index, ID: rowID(rec, r.idColumn), Values: rec}, nil
}

func (r *JSONReader) Close() error {
	return r.closer.Close()
}
