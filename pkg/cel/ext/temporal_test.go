package ext

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemporalFuncs(t *testing.T) {
	env := newEnv(t, TemporalFuncs())
	ts := time.Date(2024, 6, 15, 14, 30, 45, 123456789, time.UTC)
	vars := map[string]any{"ts": ts}

	runCases(t, env, []evalCase{
		{"year", "year(ts)", vars, int64(2024)},
		{"month", "month(ts)", vars, int64(6)},
		{"day", "day(ts)", vars, int64(15)},
		{"hour", "hour(ts)", vars, int64(14)},
		{"minute", "minute(ts)", vars, int64(30)},
		{"second", "second(ts)", vars, int64(45)},
		{"dayOfWeek", "dayOfWeek(ts)", vars, int64(time.Saturday)},
		{"dayOfYear", "dayOfYear(ts)", vars, int64(167)},
		{"weekOfYear", "weekOfYear(ts)", vars, int64(24)},
		{"date", "date(ts)", vars, "2024-06-15"},
		{"datetime", "datetime(ts)", vars, "2024-06-15T14:30:45.123456"},
		{"hour in utc", "hour(ts)", map[string]any{"ts": time.Date(2024, 6, 15, 9, 0, 0, 0, time.FixedZone("EST", -5*3600))}, int64(14)},
		{"epochMillis", "epochMillis(fromEpochMillis(1614556800000))", nil, int64(1614556800000)},
		{"fromEpochMillis", "date(fromEpochMillis(1614556800000))", nil, "2021-03-01"},
		{"yearsBetween", "yearsBetween(parseTimestamp('1980-06-16'), ts)", vars, int64(43)},
		{"yearsBetween birthday", "yearsBetween(parseTimestamp('1980-06-15'), ts)", vars, int64(44)},
		{"yearsBetween reversed", "yearsBetween(ts, parseTimestamp('1980-06-15'))", vars, int64(-44)},
	})
}

func TestTemporalFuncs_ParseTimestamp(t *testing.T) {
	env := newEnv(t, TemporalFuncs())
	want := time.Date(2021, 2, 28, 8, 30, 0, 0, time.UTC)

	for _, in := range []string{
		"2021-02-28T08:30:00Z",
		"2021-02-28T08:30:00",
		"2021-02-28 08:30:00",
		"2021-02-28 08:30:00 UTC",
		"2021-02-28T03:30:00-05:00",
	} {
		t.Run(in, func(t *testing.T) {
			out, err := eval(t, env, "parseTimestamp(s)", map[string]any{"s": in})
			require.NoError(t, err)
			assert.True(t, want.Equal(out.Value().(time.Time)))
		})
	}

	out, err := eval(t, env, "date(parseTimestamp(s))", map[string]any{"s": "2021-02-28"})
	require.NoError(t, err)
	assert.Equal(t, "2021-02-28", out.Value())

	out, err = eval(t, env, "date(parseTimestamp(s, '02/01/2006'))", map[string]any{"s": "28/02/2021"})
	require.NoError(t, err)
	assert.Equal(t, "2021-02-28", out.Value())

	_, err = eval(t, env, "parseTimestamp(s)", map[string]any{"s": "yesterday"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized timestamp")

	_, err = eval(t, env, "parseTimestamp(s, '2006')", map[string]any{"s": "x"})
	require.Error(t, err)
}
