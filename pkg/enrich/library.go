package enrich

import (
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// Funcs returns the rule-only CEL functions. The general purpose ones live
// in pkg/cel/ext.
//
// Functions:
//   - orZero(dyn) -> dyn: 0 when the argument is null
//   - datePart(string) -> string: leading YYYY-MM-DD of an ISO value
func Funcs() cel.EnvOption {
	return cel.Lib(&ruleLib{})
}

type ruleLib struct{}

func (l *ruleLib) LibraryName() string {
	return "cdmcheck.rules"
}

func (l *ruleLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("orZero",
			cel.Overload("orZero_dyn",
				[]*cel.Type{cel.DynType},
				cel.DynType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					if v.Type() == types.NullType {
						return types.Int(0)
					}
					return v
				}),
			),
		),
		cel.Function("datePart",
			cel.Overload("datePart_string",
				[]*cel.Type{cel.StringType},
				cel.StringType,
				cel.UnaryBinding(func(s ref.Val) ref.Val {
					str := strings.TrimSpace(string(s.(types.String)))
					if len(str) < 10 {
						return types.NewErr("datePart: %q is shorter than a date", str)
					}
					return types.String(str[:10])
				}),
			),
		),
	}
}

func (l *ruleLib) ProgramOptions() []cel.ProgramOption {
	return nil
}
