package reader

import (
	"fmt"
	"io"

	"github.com/hamba/avro/v2/ocf"

	"github.com/unijord/cdmcheck/pkg/record"
)

// AvroReader reads records from an Avro object container file.
type AvroReader struct {
	dec      *ocf.Decoder
	closer   io.Closer
	idColumn string
	index    int
}

// NewAvroReader reads the container header of r. The writer schema embedded
// in the file drives decoding.
func NewAvroReader(r io.Reader, idColumn string) (*AvroReader, error) {
	dec, err := ocf.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("open avro container: %w", err)
	}
	return &AvroReader{dec: dec, closer: closerOf(r), idColumn: idColumn}, nil
}

func (r *AvroReader) Next() (Row, error) {
	if !r.dec.HasNext() {
		if err := r.dec.Error(); err != nil {
			return Row{}, fmt.Errorf("read avro row %d: %w", r.index+1, err)
		}
		return Row{}, io.EOF
	}

	var values map[string]any
	if err := r.dec.Decode(&values); err != nil {
		return Row{}, fmt.Errorf("decode avro row %d: %w", r.index+1, err)
	}
	r.index++

	rec := make(record.Record, len(values))
	for k, v := range values {
		rec[k] = unwrapUnion(v)
	}
	return Row{Index: r.index, ID: rowID(rec, r.idColumn), Values: rec}, nil
}

func (r *AvroReader) Close() error {
	return r.closer.Close()
}

// unwrapUnion flattens a generically decoded union, {"long": 5}, to its branch value.
func unwrapUnion(v any) any {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v
	}
	for _, inner := range m {
		return inner
	}
	return v
}
