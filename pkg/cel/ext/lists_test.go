package ext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFuncs(t *testing.T) {
	env := newEnv(t, ListFuncs())

	runCases(t, env, []evalCase{
		{"sum", "sum([1, 2, 3])", nil, int64(6)},
		{"sum empty", "sum([])", nil, int64(0)},
		{"sumDouble", "sumDouble([0.5, 1.25])", nil, 1.75},
		{"min", "min([4, -2, 9])", nil, int64(-2)},
		{"max", "max([4, -2, 9])", nil, int64(9)},
		{"avg", "avg([1, 2])", nil, 1.5},
		{"first", "first(['a', 'b'])", nil, "a"},
		{"last", "last(['a', 'b'])", nil, "b"},
		{"first empty", "first([])", nil, nil},
		{"last empty", "last([])", nil, nil},
		{"flatten size", "size(flatten([[1, 2], [], [3]]))", nil, int64(3)},
		{"flatten last", "last(flatten([[1, 2], [3]]))", nil, int64(3)},
	})
}

func TestListFuncs_EmptyAggregates(t *testing.T) {
	env := newEnv(t, ListFuncs())
	for _, expr := range []string{"min([])", "max([])", "avg([])"} {
		t.Run(expr, func(t *testing.T) {
			_, err := eval(t, env, expr, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "empty list")
		})
	}
}
