package validate

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"

	"github.com/unijord/cdmcheck/pkg/record"
	"github.com/unijord/cdmcheck/pkg/schema"
)

// timestampLayouts are tried in order after the date-only form. Zoneless
// layouts are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999 UTC",
}

// coerce converts v to the normalized Go type for t.
func coerce(t schema.ColumnType, v any) (any, bool) {
	switch t {
	case schema.TypeInteger:
		return toInteger(v)
	case schema.TypeFloat:
		return toFloat(v)
	case schema.TypeString:
		return toString(v)
	case schema.TypeBoolean:
		return toBoolean(v)
	case schema.TypeDate:
		return toDate(v)
	case schema.TypeTimestamp:
		return toTimestamp(v)
	default:
		return nil, false
	}
}

func toInteger(v any) (any, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint:
		return uintToInt64(uint64(n))
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return uintToInt64(n)
	case float32:
		return wholeFloat(float64(n))
	case float64:
		// JSON decoders without UseNumber hand every number over as float64.
		return wholeFloat(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		return nil, false
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return nil, false
		}
		return i, true
	default:
		return nil, false
	}
}

func uintToInt64(n uint64) (any, bool) {
	if n > math.MaxInt64 {
		return nil, false
	}
	return int64(n), true
}

func wholeFloat(f float64) (any, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, false
	}
	return int64(f), true
}

func toFloat(v any) (any, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int64:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, false
		}
		f = parsed
	default:
		return nil, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return f, true
}

// toString keeps strings as-is and renders other scalars canonically, since
// loosely typed sources (JSON, Avro) may carry codes as numbers.
func toString(v any) (any, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case int64, float64, bool:
		return record.Format(s), true
	case int:
		return strconv.Itoa(s), true
	default:
		return nil, false
	}
}

func toBoolean(v any) (any, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return nil, false
		}
		return parsed, true
	case int64:
		return intToBool(b)
	case int:
		return intToBool(int64(b))
	case json.Number:
		i, err := b.Int64()
		if err != nil {
			return nil, false
		}
		return intToBool(i)
	default:
		return nil, false
	}
}

func intToBool(i int64) (any, bool) {
	switch i {
	case 0:
		return false, true
	case 1:
		return true, true
	default:
		return nil, false
	}
}

func toDate(v any) (any, bool) {
	switch d := v.(type) {
	case strfmt.Date:
		return d, true
	case time.Time:
		y, m, day := d.UTC().Date()
		return strfmt.Date(time.Date(y, m, day, 0, 0, 0, 0, time.UTC)), true
	case string:
		t, err := time.ParseInLocation(strfmt.RFC3339FullDate, strings.TrimSpace(d), time.UTC)
		if err != nil {
			return nil, false
		}
		return strfmt.Date(t), true
	default:
		return nil, false
	}
}

// toTimestamp normalizes to UTC at microsecond precision, the finest unit
// the canonical text form carries.
func toTimestamp(v any) (any, bool) {
	var t time.Time
	switch ts := v.(type) {
	case time.Time:
		t = ts
	case strfmt.DateTime:
		t = time.Time(ts)
	case strfmt.Date:
		// a bare date means midnight of that date
		t = time.Time(ts)
	case string:
		parsed, ok := parseTimestamp(strings.TrimSpace(ts))
		if !ok {
			return nil, false
		}
		t = parsed
	default:
		return nil, false
	}
	return t.UTC().Truncate(time.Microsecond), true
}

func parseTimestamp(s string) (time.Time, bool) {
	if t, err := time.ParseInLocation(strfmt.RFC3339FullDate, s, time.UTC); err == nil {
		return t, true
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	if dt, err := strfmt.ParseDateTime(s); err == nil {
		return time.Time(dt), true
	}
	return time.Time{}, false
}
