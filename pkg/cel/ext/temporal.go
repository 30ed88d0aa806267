package ext

import (
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/unijord/cdmcheck/pkg/record"
)

// sourceLayouts are tried in order by the one argument parseTimestamp. They
// cover what exports of CDM tables usually carry.
var sourceLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999 UTC",
	record.DateLayout,
}

// TemporalFuncs returns the date and time functions. Component accessors
// read the timestamp in UTC.
//
// date and datetime render the canonical CDM text forms, so their results
// can be assigned to date and timestamp columns directly.
func TemporalFuncs() cel.EnvOption {
	return cel.Lib(&temporalLib{})
}

type temporalLib struct{}

func (l *temporalLib) LibraryName() string {
	return "cdmcheck.temporal"
}

func (l *temporalLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		component("year", func(t time.Time) int { return t.Year() }),
		component("month", func(t time.Time) int { return int(t.Month()) }),
		component("day", time.Time.Day),
		component("hour", time.Time.Hour),
		component("minute", time.Time.Minute),
		component("second", time.Time.Second),
		component("dayOfWeek", func(t time.Time) int { return int(t.Weekday()) }),
		component("dayOfYear", time.Time.YearDay),
		component("weekOfYear", func(t time.Time) int {
			_, week := t.ISOWeek()
			return week
		}),
		cel.Function("date",
			cel.Overload("date_timestamp",
				[]*cel.Type{cel.TimestampType},
				cel.StringType,
				cel.UnaryBinding(func(ts ref.Val) ref.Val {
					return types.String(utc(ts).Format(record.DateLayout))
				}),
			),
		),
		cel.Function("datetime",
			cel.Overload("datetime_timestamp",
				[]*cel.Type{cel.TimestampType},
				cel.StringType,
				cel.UnaryBinding(func(ts ref.Val) ref.Val {
					return types.String(utc(ts).Format(record.TimestampLayout))
				}),
			),
		),
		cel.Function("parseTimestamp",
			cel.Overload("parseTimestamp_string",
				[]*cel.Type{cel.StringType},
				cel.TimestampType,
				cel.UnaryBinding(func(s ref.Val) ref.Val {
					in := str(s)
					for _, layout := range sourceLayouts {
						if t, err := time.ParseInLocation(layout, in, time.UTC); err == nil {
							return types.Timestamp{Time: t.UTC()}
						}
					}
					return types.NewErr("parseTimestamp: unrecognized timestamp %q", in)
				}),
			),
			cel.Overload("parseTimestamp_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.TimestampType,
				cel.BinaryBinding(func(s, layout ref.Val) ref.Val {
					t, err := time.ParseInLocation(str(layout), str(s), time.UTC)
					if err != nil {
						return types.NewErr("parseTimestamp: %s", err)
					}
					return types.Timestamp{Time: t.UTC()}
				}),
			),
		),
		// whole years from the first to the second timestamp, e.g. age at an event
		cel.Function("yearsBetween",
			cel.Overload("yearsBetween_timestamp_timestamp",
				[]*cel.Type{cel.TimestampType, cel.TimestampType},
				cel.IntType,
				cel.BinaryBinding(func(from, to ref.Val) ref.Val {
					return types.Int(yearsBetween(utc(from), utc(to)))
				}),
			),
		),
		cel.Function("epochMillis",
			cel.Overload("epochMillis_timestamp",
				[]*cel.Type{cel.TimestampType},
				cel.IntType,
				cel.UnaryBinding(func(ts ref.Val) ref.Val {
					return types.Int(utc(ts).UnixMilli())
				}),
			),
		),
		cel.Function("fromEpochMillis",
			cel.Overload("fromEpochMillis_int",
				[]*cel.Type{cel.IntType},
				cel.TimestampType,
				cel.UnaryBinding(func(ms ref.Val) ref.Val {
					return types.Timestamp{Time: time.UnixMilli(int64(ms.(types.Int))).UTC()}
				}),
			),
		),
	}
}

func (l *temporalLib) ProgramOptions() []cel.ProgramOption {
	return nil
}

func component(name string, fn func(time.Time) int) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(name+"_timestamp",
			[]*cel.Type{cel.TimestampType},
			cel.IntType,
			cel.UnaryBinding(func(ts ref.Val) ref.Val {
				return types.Int(fn(utc(ts)))
			}),
		),
	)
}

func utc(ts ref.Val) time.Time {
	return ts.Value().(time.Time).UTC()
}

func yearsBetween(from, to time.Time) int {
	if to.Before(from) {
		return -yearsBetween(to, from)
	}
	years := to.Year() - from.Year()
	if to.Month() < from.Month() || (to.Month() == from.Month() && to.Day() < from.Day()) {
		years--
	}
	return years
}
