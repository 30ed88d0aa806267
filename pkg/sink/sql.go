package sink

import (
	"bufio"
	"io"
	"strings"

	"github.com/unijord/cdmcheck/pkg/record"
	"github.com/unijord/cdmcheck/pkg/schema"
)

// SQLWriter writes one SQL row expression per line, ready to paste into a
// VALUES clause.
type SQLWriter struct {
	w      *bufio.Writer
	table  *schema.TableSchema
	closed bool
}

func NewSQLWriter(w io.Writer, ts *schema.TableSchema) *SQLWriter {
	return &SQLWriter{w: bufio.NewWriter(w), table: ts}
}

func (s *SQLWriter) Write(rec record.Record) error {
	if s.closed {
		return ErrClosed
	}
	expr, err := RowExpr(s.table, rec)
	if err != nil {
		return err
	}
	if _, err := s.w.WriteString(expr); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

func (s *SQLWriter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.w.Flush()
}

// RowExpr renders rec as a SQL row expression such as (1234, '2019-01-01', NULL).
// String, date and timestamp values are single-quoted with embedded quotes
// doubled. A null in a nullable column is NULL; an empty required string is ''.
func RowExpr(ts *schema.TableSchema, rec record.Record) (string, error) {
	var b strings.Builder
	b.WriteByte('(')
	for i := 0; i < ts.Len(); i++ {
		col := ts.At(i)
		if i > 0 {
			b.WriteString(", ")
		}

		v := rec[col.Name]
		text := record.Format(v)
		if record.IsNull(v) || text == "" {
			switch {
			case !col.Required():
				b.WriteString("NULL")
				continue
			case col.Type == schema.TypeString:
				b.WriteString("''")
				continue
			default:
				return "", &ValueError{Column: col.Name, Value: v}
			}
		}

		switch col.Type {
		case schema.TypeString, schema.TypeDate, schema.TypeTimestamp:
			b.WriteByte('\'')
			b.WriteString(strings.ReplaceAll(text, "'", "''"))
			b.WriteByte('\'')
		default:
			b.WriteString(text)
		}
	}
	b.WriteByte(')')
	return b.String(), nil
}
