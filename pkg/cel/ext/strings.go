package ext

import (
	"regexp"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// StringFuncs returns the string functions used to clean source values.
//
// Lengths count runes, not bytes. padLeft and padRight cut the result to
// exactly length runes. truncate cuts without an ellipsis.
func StringFuncs() cel.EnvOption {
	return cel.Lib(&stringLib{})
}

type stringLib struct{}

func (l *stringLib) LibraryName() string {
	return "cdmcheck.strings"
}

func (l *stringLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		unaryString("lower", strings.ToLower),
		unaryString("upper", strings.ToUpper),
		unaryString("trim", strings.TrimSpace),
		cel.Function("trimPrefix",
			cel.Overload("trimPrefix_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.StringType,
				cel.BinaryBinding(func(s, prefix ref.Val) ref.Val {
					return types.String(strings.TrimPrefix(str(s), str(prefix)))
				}),
			),
		),
		cel.Function("trimSuffix",
			cel.Overload("trimSuffix_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.StringType,
				cel.BinaryBinding(func(s, suffix ref.Val) ref.Val {
					return types.String(strings.TrimSuffix(str(s), str(suffix)))
				}),
			),
		),
		cel.Function("replace",
			cel.Overload("replace_string_string_string",
				[]*cel.Type{cel.StringType, cel.StringType, cel.StringType},
				cel.StringType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					return types.String(strings.ReplaceAll(str(args[0]), str(args[1]), str(args[2])))
				}),
			),
		),
		cel.Function("split",
			cel.Overload("split_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.ListType(cel.StringType),
				cel.BinaryBinding(func(s, sep ref.Val) ref.Val {
					return types.DefaultTypeAdapter.NativeToValue(strings.Split(str(s), str(sep)))
				}),
			),
		),
		cel.Function("join",
			cel.Overload("join_list_string",
				[]*cel.Type{cel.ListType(cel.StringType), cel.StringType},
				cel.StringType,
				cel.BinaryBinding(func(list, sep ref.Val) ref.Val {
					l := list.(traits.Lister)
					n := int(l.Size().(types.Int))
					parts := make([]string, n)
					for i := range parts {
						parts[i] = str(l.Get(types.Int(i)))
					}
					return types.String(strings.Join(parts, str(sep)))
				}),
			),
		),
		cel.Function("substr",
			cel.Overload("substr_string_int_int",
				[]*cel.Type{cel.StringType, cel.IntType, cel.IntType},
				cel.StringType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					runes := []rune(str(args[0]))
					start := max(int(args[1].(types.Int)), 0)
					if start >= len(runes) {
						return types.String("")
					}
					end := min(start+max(int(args[2].(types.Int)), 0), len(runes))
					return types.String(runes[start:end])
				}),
			),
		),
		cel.Function("padLeft",
			cel.Overload("padLeft_string_int_string",
				[]*cel.Type{cel.StringType, cel.IntType, cel.StringType},
				cel.StringType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					return types.String(pad(str(args[0]), int(args[1].(types.Int)), str(args[2]), true))
				}),
			),
		),
		cel.Function("padRight",
			cel.Overload("padRight_string_int_string",
				[]*cel.Type{cel.StringType, cel.IntType, cel.StringType},
				cel.StringType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					return types.String(pad(str(args[0]), int(args[1].(types.Int)), str(args[2]), false))
				}),
			),
		),
		cel.Function("truncate",
			cel.Overload("truncate_string_int",
				[]*cel.Type{cel.StringType, cel.IntType},
				cel.StringType,
				cel.BinaryBinding(func(s, maxLen ref.Val) ref.Val {
					runes := []rune(str(s))
					n := max(int(maxLen.(types.Int)), 0)
					if len(runes) <= n {
						return s
					}
					return types.String(runes[:n])
				}),
			),
		),
		cel.Function("regexMatch",
			cel.Overload("regexMatch_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(s, pattern ref.Val) ref.Val {
					re, err := compilePattern(str(pattern))
					if err != nil {
						return types.NewErr("regexMatch: invalid pattern: %s", err)
					}
					return types.Bool(re.MatchString(str(s)))
				}),
			),
		),
		cel.Function("regexReplace",
			cel.Overload("regexReplace_string_string_string",
				[]*cel.Type{cel.StringType, cel.StringType, cel.StringType},
				cel.StringType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					re, err := compilePattern(str(args[1]))
					if err != nil {
						return types.NewErr("regexReplace: invalid pattern: %s", err)
					}
					return types.String(re.ReplaceAllString(str(args[0]), str(args[2])))
				}),
			),
		),
	}
}

func (l *stringLib) ProgramOptions() []cel.ProgramOption {
	return nil
}

func unaryString(name string, fn func(string) string) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(name+"_string",
			[]*cel.Type{cel.StringType},
			cel.StringType,
			cel.UnaryBinding(func(s ref.Val) ref.Val {
				return types.String(fn(str(s)))
			}),
		),
	)
}

func str(v ref.Val) string {
	return string(v.(types.String))
}

// pad extends s with fill up to length runes, then cuts it to exactly length.
// Left padding keeps the rightmost runes.
func pad(s string, length int, fill string, left bool) string {
	if fill == "" || length < 0 {
		return s
	}
	runes := []rune(s)
	fillRunes := []rune(fill)
	for len(runes) < length {
		if left {
			runes = append(append([]rune{}, fillRunes...), runes...)
		} else {
			runes = append(runes, fillRunes...)
		}
	}
	if len(runes) > length {
		if left {
			runes = runes[len(runes)-length:]
		} else {
			runes = runes[:length]
		}
	}
	return string(runes)
}

// patterns caches compiled regular expressions by source.
var patterns sync.Map

func compilePattern(p string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(p); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	patterns.Store(p, re)
	return re, nil
}
