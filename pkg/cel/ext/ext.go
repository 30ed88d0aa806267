// Package ext provides the general purpose CEL functions available to
// enrichment rules. Rule expressions see raw record values, so most
// functions here deal with cleaning source values and deriving CDM columns
// from them.
//
// # Null Functions (NullFuncs)
//
//   - coalesce(dyn, dyn[, dyn[, dyn]]) -> dyn
//   - isNull(dyn) -> bool
//   - isNotNull(dyn) -> bool
//   - nullIf(dyn, dyn) -> dyn
//   - blankToNull(dyn) -> dyn
//
// # String Functions (StringFuncs)
//
//   - lower, upper, trim(string) -> string
//   - trimPrefix, trimSuffix(string, string) -> string
//   - replace(string, old, new) -> string
//   - split(string, sep) -> list<string>
//   - join(list<string>, sep) -> string
//   - substr(string, start, length) -> string
//   - padLeft, padRight(string, length, pad) -> string
//   - truncate(string, maxLen) -> string
//   - regexMatch(string, pattern) -> bool
//   - regexReplace(string, pattern, replacement) -> string
//
// # Temporal Functions (TemporalFuncs)
//
//   - year, month, day, hour, minute, second(timestamp) -> int
//   - dayOfWeek, dayOfYear, weekOfYear(timestamp) -> int
//   - date(timestamp) -> string
//   - datetime(timestamp) -> string
//   - parseTimestamp(string[, layout]) -> timestamp
//   - yearsBetween(timestamp, timestamp) -> int
//   - epochMillis(timestamp) -> int
//   - fromEpochMillis(int) -> timestamp
//
// # Convert Functions (ConvertFuncs)
//
//   - toInt(string|int|double|bool) -> int
//   - toDouble(string|int|double) -> double
//   - toString(string|int|double|bool) -> string
//   - toBool(string|int|bool) -> bool
//
// # Crypto Functions (CryptoFuncs)
//
//   - xxhash(string) -> string
//   - sha256(string) -> string
//
// # List Functions (ListFuncs)
//
//   - sum, min, max(list<int>) -> int
//   - sumDouble(list<double>) -> double
//   - avg(list<int>) -> double
//   - first, last(list<dyn>) -> dyn
//   - flatten(list<list<dyn>>) -> list<dyn>
package ext

import "github.com/google/cel-go/cel"

// AllFuncs returns every library of this package.
func AllFuncs() []cel.EnvOption {
	return []cel.EnvOption{
		NullFuncs(),
		StringFuncs(),
		TemporalFuncs(),
		ConvertFuncs(),
		CryptoFuncs(),
		ListFuncs(),
	}
}
