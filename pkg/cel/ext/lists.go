package ext

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// ListFuncs returns list helpers, typically applied to the result of split
// on a delimited source value.
//
// min, max and avg fail on an empty list. first and last return null for it.
func ListFuncs() cel.EnvOption {
	return cel.Lib(&listLib{})
}

type listLib struct{}

func (l *listLib) LibraryName() string {
	return "cdmcheck.lists"
}

func (l *listLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("sum",
			cel.Overload("sum_list_int",
				[]*cel.Type{cel.ListType(cel.IntType)},
				cel.IntType,
				cel.UnaryBinding(func(list ref.Val) ref.Val {
					var total int64
					for _, v := range ints(list) {
						total += v
					}
					return types.Int(total)
				}),
			),
		),
		cel.Function("sumDouble",
			cel.Overload("sumDouble_list_double",
				[]*cel.Type{cel.ListType(cel.DoubleType)},
				cel.DoubleType,
				cel.UnaryBinding(func(list ref.Val) ref.Val {
					var total float64
					for _, v := range elems(list) {
						total += float64(v.(types.Double))
					}
					return types.Double(total)
				}),
			),
		),
		cel.Function("min",
			cel.Overload("min_list_int",
				[]*cel.Type{cel.ListType(cel.IntType)},
				cel.IntType,
				cel.UnaryBinding(func(list ref.Val) ref.Val {
					return extreme("min", ints(list), func(a, b int64) bool { return a < b })
				}),
			),
		),
		cel.Function("max",
			cel.Overload("max_list_int",
				[]*cel.Type{cel.ListType(cel.IntType)},
				cel.IntType,
				cel.UnaryBinding(func(list ref.Val) ref.Val {
					return extreme("max", ints(list), func(a, b int64) bool { return a > b })
				}),
			),
		),
		cel.Function("avg",
			cel.Overload("avg_list_int",
				[]*cel.Type{cel.ListType(cel.IntType)},
				cel.DoubleType,
				cel.UnaryBinding(func(list ref.Val) ref.Val {
					vals := ints(list)
					if len(vals) == 0 {
						return types.NewErr("avg: empty list")
					}
					var total int64
					for _, v := range vals {
						total += v
					}
					return types.Double(float64(total) / float64(len(vals)))
				}),
			),
		),
		cel.Function("first",
			cel.Overload("first_list",
				[]*cel.Type{cel.ListType(cel.DynType)},
				cel.DynType,
				cel.UnaryBinding(func(list ref.Val) ref.Val {
					vals := elems(list)
					if len(vals) == 0 {
						return types.NullValue
					}
					return vals[0]
				}),
			),
		),
		cel.Function("last",
			cel.Overload("last_list",
				[]*cel.Type{cel.ListType(cel.DynType)},
				cel.DynType,
				cel.UnaryBinding(func(list ref.Val) ref.Val {
					vals := elems(list)
					if len(vals) == 0 {
						return types.NullValue
					}
					return vals[len(vals)-1]
				}),
			),
		),
		cel.Function("flatten",
			cel.Overload("flatten_list_list",
				[]*cel.Type{cel.ListType(cel.ListType(cel.DynType))},
				cel.ListType(cel.DynType),
				cel.UnaryBinding(func(list ref.Val) ref.Val {
					var out []ref.Val
					for _, inner := range elems(list) {
						out = append(out, elems(inner)...)
					}
					return types.DefaultTypeAdapter.NativeToValue(out)
				}),
			),
		),
	}
}

func (l *listLib) ProgramOptions() []cel.ProgramOption {
	return nil
}

func elems(list ref.Val) []ref.Val {
	l := list.(traits.Lister)
	n := int(l.Size().(types.Int))
	out := make([]ref.Val, n)
	for i := range out {
		out[i] = l.Get(types.Int(i))
	}
	return out
}

func ints(list ref.Val) []int64 {
	vals := elems(list)
	out := make([]int64, len(vals))
	for i, v := range vals {
		out[i] = int64(v.(types.Int))
	}
	return out
}

func extreme(name string, vals []int64, better func(a, b int64) bool) ref.Val {
	if len(vals) == 0 {
		return types.NewErr("%s: empty list", name)
	}
	best := vals[0]
	for _, v := range vals[1:] {
		if better(v, best) {
			best = v
		}
	}
	return types.Int(best)
}
