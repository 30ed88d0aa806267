package sink

import (
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-openapi/strfmt"

	"github.com/unijord/cdmcheck/pkg/record"
	"github.com/unijord/cdmcheck/pkg/schema"
)

// arrowBatchSize is the number of rows buffered before a record batch is written.
const arrowBatchSize = 4096

// ColumnTypeToArrow maps a column type onto its Arrow data type.
//
//	| Column type | Arrow type         |
//	|-------------|--------------------|
//	| integer     | Int64              |
//	| float       | Float64            |
//	| string      | String             |
//	| boolean     | Boolean            |
//	| date        | Date32             |
//	| timestamp   | Timestamp(µs, UTC) |
func ColumnTypeToArrow(t schema.ColumnType) (arrow.DataType, error) {
	switch t {
	case schema.TypeInteger:
		return arrow.PrimitiveTypes.Int64, nil
	case schema.TypeFloat:
		return arrow.PrimitiveTypes.Float64, nil
	case schema.TypeString:
		return arrow.BinaryTypes.String, nil
	case schema.TypeBoolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case schema.TypeDate:
		return arrow.FixedWidthTypes.Date32, nil
	case schema.TypeTimestamp:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}, nil
	default:
		return nil, fmt.Errorf("no arrow type for column type %v", t)
	}
}

// ArrowSchema builds the Arrow schema of a table. Nullable columns are
// nullable fields.
func ArrowSchema(ts *schema.TableSchema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, ts.Len())
	for i := 0; i < ts.Len(); i++ {
		col := ts.At(i)
		dt, err := ColumnTypeToArrow(col.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		fields[i] = arrow.Field{Name: col.Name, Type: dt, Nullable: !col.Required()}
	}
	md := arrow.NewMetadata([]string{"table"}, []string{ts.Name()})
	return arrow.NewSchema(fields, &md), nil
}

// ArrowWriter writes an Arrow IPC file in batches.
type ArrowWriter struct {
	table   *schema.TableSchema
	mem     memory.Allocator
	fw      *ipc.FileWriter
	builder *array.RecordBuilder
	pending int
	closed  bool
}

func NewArrowWriter(w io.Writer, ts *schema.TableSchema) (*ArrowWriter, error) {
	sc, err := ArrowSchema(ts)
	if err != nil {
		return nil, err
	}
	mem := memory.NewGoAllocator()
	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(sc), ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("create arrow file writer: %w", err)
	}
	return &ArrowWriter{
		table:   ts,
		mem:     mem,
		fw:      fw,
		builder: array.NewRecordBuilder(mem, sc),
	}, nil
}

func (a *ArrowWriter) Write(rec record.Record) error {
	if a.closed {
		return ErrClosed
	}
	// check every value first so a bad row leaves no partial columns behind
	for i := 0; i < a.table.Len(); i++ {
		col := a.table.At(i)
		if err := checkValue(col, rec[col.Name]); err != nil {
			return err
		}
	}
	for i := 0; i < a.table.Len(); i++ {
		col := a.table.At(i)
		appendArrowValue(a.builder.Field(i), rec[col.Name])
	}
	a.pending++
	if a.pending >= arrowBatchSize {
		return a.flush()
	}
	return nil
}

func (a *ArrowWriter) flush() error {
	if a.pending == 0 {
		return nil
	}
	batch := a.builder.NewRecord()
	defer batch.Release()
	a.pending = 0
	if err := a.fw.Write(batch); err != nil {
		return fmt.Errorf("write arrow batch: %w", err)
	}
	return nil
}

// Close writes any buffered rows and the file footer.
func (a *ArrowWriter) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	defer a.builder.Release()
	if err := a.flush(); err != nil {
		return err
	}
	return a.fw.Close()
}

func appendArrowValue(b array.Builder, v any) {
	if record.IsNull(v) {
		b.AppendNull()
		return
	}
	switch fb := b.(type) {
	case *array.Int64Builder:
		fb.Append(v.(int64))
	case *array.Float64Builder:
		fb.Append(v.(float64))
	case *array.StringBuilder:
		fb.Append(v.(string))
	case *array.BooleanBuilder:
		fb.Append(v.(bool))
	case *array.Date32Builder:
		fb.Append(arrow.Date32FromTime(time.Time(v.(strfmt.Date))))
	case *array.TimestampBuilder:
		fb.Append(arrow.Timestamp(v.(time.Time).UnixMicro()))
	}
}
