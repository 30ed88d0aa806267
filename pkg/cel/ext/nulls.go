package ext

import (
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// NullFuncs returns the null handling functions.
//
// coalesce takes two to four arguments and returns the first non-null one.
// blankToNull turns an empty or whitespace-only string into null so it can
// feed coalesce.
func NullFuncs() cel.EnvOption {
	return cel.Lib(&nullLib{})
}

type nullLib struct{}

func (l *nullLib) LibraryName() string {
	return "cdmcheck.nulls"
}

func (l *nullLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("coalesce",
			cel.Overload("coalesce_dyn_dyn",
				[]*cel.Type{cel.DynType, cel.DynType},
				cel.DynType,
				cel.BinaryBinding(func(a, b ref.Val) ref.Val {
					return firstNonNull(a, b)
				}),
			),
			cel.Overload("coalesce_dyn_dyn_dyn",
				[]*cel.Type{cel.DynType, cel.DynType, cel.DynType},
				cel.DynType,
				cel.FunctionBinding(firstNonNull),
			),
			cel.Overload("coalesce_dyn_dyn_dyn_dyn",
				[]*cel.Type{cel.DynType, cel.DynType, cel.DynType, cel.DynType},
				cel.DynType,
				cel.FunctionBinding(firstNonNull),
			),
		),
		cel.Function("isNull",
			cel.Overload("isNull_dyn",
				[]*cel.Type{cel.DynType},
				cel.BoolType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					return types.Bool(v.Type() == types.NullType)
				}),
			),
		),
		cel.Function("isNotNull",
			cel.Overload("isNotNull_dyn",
				[]*cel.Type{cel.DynType},
				cel.BoolType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					return types.Bool(v.Type() != types.NullType)
				}),
			),
		),
		cel.Function("nullIf",
			cel.Overload("nullIf_dyn_dyn",
				[]*cel.Type{cel.DynType, cel.DynType},
				cel.DynType,
				cel.BinaryBinding(func(v, sentinel ref.Val) ref.Val {
					if v.Equal(sentinel) == types.True {
						return types.NullValue
					}
					return v
				}),
			),
		),
		cel.Function("blankToNull",
			cel.Overload("blankToNull_dyn",
				[]*cel.Type{cel.DynType},
				cel.DynType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					if s, ok := v.(types.String); ok && strings.TrimSpace(string(s)) == "" {
						return types.NullValue
					}
					return v
				}),
			),
		),
	}
}

func (l *nullLib) ProgramOptions() []cel.ProgramOption {
	return nil
}

func firstNonNull(args ...ref.Val) ref.Val {
	for _, arg := range args {
		if arg.Type() != types.NullType {
			return arg
		}
	}
	return types.NullValue
}
