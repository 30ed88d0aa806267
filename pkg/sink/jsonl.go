package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/unijord/cdmcheck/pkg/record"
	"github.com/unijord/cdmcheck/pkg/schema"
)

// JSONWriter writes one JSON object per line. Dates and timestamps use their
// canonical text forms and nulls are written as null.
type JSONWriter struct {
	w      *bufio.Writer
	table  *schema.TableSchema
	closed bool
}

func NewJSONWriter(w io.Writer, ts *schema.TableSchema) *JSONWriter {
	return &JSONWriter{w: bufio.NewWriter(w), table: ts}
}

func (j *JSONWriter) Write(rec record.Record) error {
	if j.closed {
		return ErrClosed
	}

	line := make([]byte, 0, 64*j.table.Len())
	line = append(line, '{')
	for i := 0; i < j.table.Len(); i++ {
		name := j.table.At(i).Name
		if i > 0 {
			line = append(line, ',')
		}
		key, _ := json.Marshal(name)
		val, err := json.Marshal(record.JSONValue(rec[name]))
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		line = append(line, key...)
		line = append(line, ':')
		line = append(line, val...)
	}
	line = append(line, '}', '\n')

	_, err := j.w.Write(line)
	return err
}

func (j *JSONWriter) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true
	return j.w.Flush()
}
