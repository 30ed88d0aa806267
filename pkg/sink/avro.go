package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"

	"github.com/unijord/cdmcheck/pkg/record"
	"github.com/unijord/cdmcheck/pkg/schema"
)

// avroName is the Avro name grammar for record and field names.
var avroName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AvroSchema derives the Avro record schema of a table. Nullable columns are
// unions with null, dates use the int date logical type and timestamps use
// long timestamp-micros. Table and column names must already be valid Avro
// names; they are never rewritten.
func AvroSchema(ts *schema.TableSchema) (avro.Schema, error) {
	if !avroName.MatchString(ts.Name()) {
		return nil, fmt.Errorf("%w: table %q is not a valid avro record name", ErrInvalidName, ts.Name())
	}
	fields := make([]map[string]any, ts.Len())
	for i := 0; i < ts.Len(); i++ {
		col := ts.At(i)
		if !avroName.MatchString(col.Name) {
			return nil, fmt.Errorf("%w: column %s.%s is not a valid avro field name", ErrInvalidName, ts.Name(), col.Name)
		}
		typ := avroType(col.Type)
		field := map[string]any{"name": col.Name, "type": typ}
		if col.Description != "" {
			field["doc"] = col.Description
		}
		if !col.Required() {
			field["type"] = []any{"null", typ}
			field["default"] = nil
		}
		fields[i] = field
	}

	doc, err := json.Marshal(map[string]any{
		"type":   "record",
		"name":   ts.Name(),
		"fields": fields,
	})
	if err != nil {
		return nil, err
	}
	sc, err := avro.Parse(string(doc))
	if err != nil {
		return nil, fmt.Errorf("avro schema for %s: %w", ts.Name(), err)
	}
	return sc, nil
}

func avroType(t schema.ColumnType) any {
	switch t {
	case schema.TypeInteger:
		return "long"
	case schema.TypeFloat:
		return "double"
	case schema.TypeBoolean:
		return "boolean"
	case schema.TypeDate:
		return map[string]any{"type": "int", "logicalType": "date"}
	case schema.TypeTimestamp:
		return map[string]any{"type": "long", "logicalType": "timestamp-micros"}
	default:
		return "string"
	}
}

// AvroWriter writes an Avro object container file.
type AvroWriter struct {
	table  *schema.TableSchema
	enc    *ocf.Encoder
	closed bool
}

func NewAvroWriter(w io.Writer, ts *schema.TableSchema) (*AvroWriter, error) {
	sc, err := AvroSchema(ts)
	if err != nil {
		return nil, err
	}
	enc, err := ocf.NewEncoder(sc.String(), w, ocf.WithCodec(ocf.Deflate))
	if err != nil {
		return nil, fmt.Errorf("create avro encoder: %w", err)
	}
	return &AvroWriter{table: ts, enc: enc}, nil
}

func (a *AvroWriter) Write(rec record.Record) error {
	if a.closed {
		return ErrClosed
	}
	row := make(map[string]any, a.table.Len())
	for i := 0; i < a.table.Len(); i++ {
		col := a.table.At(i)
		v := rec[col.Name]
		if err := checkValue(col, v); err != nil {
			return err
		}
		row[col.Name] = avroValue(v)
	}
	if err := a.enc.Encode(row); err != nil {
		return fmt.Errorf("encode avro row: %w", err)
	}
	return nil
}

// Close flushes the last block.
func (a *AvroWriter) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	return a.enc.Close()
}

func avroValue(v any) any {
	switch val := v.(type) {
	case record.Null, *record.Null:
		return nil
	case strfmt.Date:
		return time.Time(val)
	case time.Time:
		// timestamp-micros drops anything finer
		return val.Truncate(time.Microsecond)
	default:
		return val
	}
}
