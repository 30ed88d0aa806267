package ext

import (
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// ConvertFuncs returns the conversion functions. Row values reach rules in
// whatever type the reader produced, so each function also accepts its own
// result type and returns it unchanged. String inputs are trimmed first.
func ConvertFuncs() cel.EnvOption {
	return cel.Lib(&convertLib{})
}

type convertLib struct{}

func (l *convertLib) LibraryName() string {
	return "cdmcheck.convert"
}

func (l *convertLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("toInt",
			cel.Overload("toInt_string",
				[]*cel.Type{cel.StringType},
				cel.IntType,
				cel.UnaryBinding(func(s ref.Val) ref.Val {
					i, err := strconv.ParseInt(strings.TrimSpace(str(s)), 10, 64)
					if err != nil {
						return types.NewErr("toInt: %s", err)
					}
					return types.Int(i)
				}),
			),
			cel.Overload("toInt_int",
				[]*cel.Type{cel.IntType},
				cel.IntType,
				cel.UnaryBinding(identity),
			),
			cel.Overload("toInt_double",
				[]*cel.Type{cel.DoubleType},
				cel.IntType,
				cel.UnaryBinding(func(d ref.Val) ref.Val {
					return types.Int(int64(d.(types.Double)))
				}),
			),
			cel.Overload("toInt_bool",
				[]*cel.Type{cel.BoolType},
				cel.IntType,
				cel.UnaryBinding(func(b ref.Val) ref.Val {
					if b.(types.Bool) {
						return types.Int(1)
					}
					return types.Int(0)
				}),
			),
		),
		cel.Function("toDouble",
			cel.Overload("toDouble_string",
				[]*cel.Type{cel.StringType},
				cel.DoubleType,
				cel.UnaryBinding(func(s ref.Val) ref.Val {
					f, err := strconv.ParseFloat(strings.TrimSpace(str(s)), 64)
					if err != nil {
						return types.NewErr("toDouble: %s", err)
					}
					return types.Double(f)
				}),
			),
			cel.Overload("toDouble_int",
				[]*cel.Type{cel.IntType},
				cel.DoubleType,
				cel.UnaryBinding(func(i ref.Val) ref.Val {
					return types.Double(i.(types.Int))
				}),
			),
			cel.Overload("toDouble_double",
				[]*cel.Type{cel.DoubleType},
				cel.DoubleType,
				cel.UnaryBinding(identity),
			),
		),
		cel.Function("toString",
			cel.Overload("toString_string",
				[]*cel.Type{cel.StringType},
				cel.StringType,
				cel.UnaryBinding(identity),
			),
			cel.Overload("toString_int",
				[]*cel.Type{cel.IntType},
				cel.StringType,
				cel.UnaryBinding(func(i ref.Val) ref.Val {
					return types.String(strconv.FormatInt(int64(i.(types.Int)), 10))
				}),
			),
			cel.Overload("toString_double",
				[]*cel.Type{cel.DoubleType},
				cel.StringType,
				cel.UnaryBinding(func(d ref.Val) ref.Val {
					return types.String(strconv.FormatFloat(float64(d.(types.Double)), 'f', -1, 64))
				}),
			),
			cel.Overload("toString_bool",
				[]*cel.Type{cel.BoolType},
				cel.StringType,
				cel.UnaryBinding(func(b ref.Val) ref.Val {
					return types.String(strconv.FormatBool(bool(b.(types.Bool))))
				}),
			),
		),
		cel.Function("toBool",
			cel.Overload("toBool_string",
				[]*cel.Type{cel.StringType},
				cel.BoolType,
				cel.UnaryBinding(func(s ref.Val) ref.Val {
					b, err := strconv.ParseBool(strings.TrimSpace(str(s)))
					if err != nil {
						return types.NewErr("toBool: %s", err)
					}
					return types.Bool(b)
				}),
			),
			cel.Overload("toBool_int",
				[]*cel.Type{cel.IntType},
				cel.BoolType,
				cel.UnaryBinding(func(i ref.Val) ref.Val {
					return types.Bool(i.(types.Int) != 0)
				}),
			),
			cel.Overload("toBool_bool",
				[]*cel.Type{cel.BoolType},
				cel.BoolType,
				cel.UnaryBinding(identity),
			),
		),
	}
}

func (l *convertLib) ProgramOptions() []cel.ProgramOption {
	return nil
}

func identity(v ref.Val) ref.Val {
	return v
}
