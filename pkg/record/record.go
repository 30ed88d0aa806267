// Package record holds the row representation shared by readers, the
// validator and the sinks.
//
// Normalized values use one Go type per column type:
//
//	integer   -> int64
//	float     -> float64
//	string    -> string
//	boolean   -> bool
//	date      -> strfmt.Date
//	timestamp -> time.Time (UTC)
//	null      -> Null{Type: <column type>}
package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"

	"github.com/unijord/cdmcheck/pkg/schema"
)

const (
	// DateLayout is the canonical text form of a date value.
	DateLayout = "2006-01-02"
	// TimestampLayout is the canonical text form of a timestamp value.
	// Trailing fractional zeros are dropped, so midnight renders as 2006-01-02T00:00:00.
	TimestampLayout = "2006-01-02T15:04:05.999999"
)

// Record maps a column name to its value. An absent key means the column was
// not supplied.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Null is a typed null: the column is known, its value is absent.
type Null struct {
	Type schema.ColumnType
}

func (n Null) String() string {
	return "null(" + n.Type.String() + ")"
}

// IsNull reports whether v is nil or a typed null.
func IsNull(v any) bool {
	switch v.(type) {
	case nil, Null, *Null:
		return true
	default:
		return false
	}
}

// IsEmpty reports whether a raw value for a column of type t carries no
// value. Blank strings count as empty for every type except string, where
// only "" does.
func IsEmpty(t schema.ColumnType, v any) bool {
	if IsNull(v) {
		return true
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	if t == schema.TypeString {
		return s == ""
	}
	return strings.TrimSpace(s) == ""
}

// Format renders a normalized value in its canonical text form.
// Nulls render as the empty string.
func Format(v any) string {
	switch val := v.(type) {
	case nil, Null, *Null:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case strfmt.Date:
		return time.Time(val).Format(DateLayout)
	case time.Time:
		return val.UTC().Format(TimestampLayout)
	default:
		return fmt.Sprint(val)
	}
}

// JSONValue converts a normalized value into a JSON-friendly one. Dates and
// timestamps become their canonical strings and nulls become nil.
func JSONValue(v any) any {
	switch val := v.(type) {
	case nil, Null, *Null:
		return nil
	case strfmt.Date, time.Time:
		return Format(val)
	default:
		return val
	}
}

// Text renders every value of r with Format, keeping nulls as empty strings.
func (r Record) Text() map[string]string {
	out := make(map[string]string, len(r))
	for k, v := range r {
		out[k] = Format(v)
	}
	return out
}
