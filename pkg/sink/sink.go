// Package sink writes validated records to output files. Every writer emits
// columns in the table schema's declared order. Close flushes buffered output
// and finalizes the file format but leaves the underlying io.Writer open.
package sink

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"

	"github.com/unijord/cdmcheck/pkg/record"
	"github.com/unijord/cdmcheck/pkg/schema"
)

var (
	// ErrUnknownFormat is returned by New for an unsupported output format.
	ErrUnknownFormat = errors.New("unknown output format")
	// ErrClosed is returned by Write after Close.
	ErrClosed = errors.New("writer closed")
	// ErrInvalidName is returned when a table or column name cannot be used
	// in the target format.
	ErrInvalidName = errors.New("invalid name")
)

// Output format names accepted by New.
const (
	FormatJSON  = "jsonl"
	FormatSQL   = "sql"
	FormatArrow = "arrow"
	FormatAvro  = "avro"
)

// Writer receives normalized records of one table.
type Writer interface {
	Write(rec record.Record) error
	Close() error
}

// New returns the writer for format.
func New(format string, w io.Writer, ts *schema.TableSchema) (Writer, error) {
	switch strings.ToLower(format) {
	case FormatJSON, "json", "":
		return NewJSONWriter(w, ts), nil
	case FormatSQL:
		return NewSQLWriter(w, ts), nil
	case FormatArrow:
		return NewArrowWriter(w, ts)
	case FormatAvro:
		return NewAvroWriter(w, ts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// ValueError reports a record value a writer cannot represent.
type ValueError struct {
	Column string
	Value  any
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("column %s: cannot write %T value %v", e.Column, e.Value, e.Value)
}

// checkValue reports values that do not match the column's normalized Go type.
func checkValue(col schema.ColumnSpec, v any) error {
	if record.IsNull(v) {
		if col.Required() {
			return &ValueError{Column: col.Name, Value: v}
		}
		return nil
	}
	ok := false
	switch col.Type {
	case schema.TypeInteger:
		_, ok = v.(int64)
	case schema.TypeFloat:
		_, ok = v.(float64)
	case schema.TypeString:
		_, ok = v.(string)
	case schema.TypeBoolean:
		_, ok = v.(bool)
	case schema.TypeDate:
		_, ok = v.(strfmt.Date)
	case schema.TypeTimestamp:
		_, ok = v.(time.Time)
	}
	if !ok {
		return &ValueError{Column: col.Name, Value: v}
	}
	return nil
}
