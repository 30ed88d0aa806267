// Package enrich fills documented column defaults and filters rows before
// validation. Rules are CEL expressions evaluated against the variable
// `row`, a map of the raw record.
//
// Example rules file:
//
//	tables:
//	  survey_conduct:
//	    defaults:
//	      assisted_concept_id: "0"
//	      survey_start_date: "has(row.survey_start_datetime) ? dyn(datePart(row.survey_start_datetime)) : null"
//	      survey_source_value: "has(row.survey_source_identifier) ? dyn(upper(trim(string(row.survey_source_identifier)))) : null"
//	    filter: "row.person_id != '0'"
//
// Besides datePart and orZero, expressions can call every function of
// pkg/cel/ext.
package enrich

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-openapi/strfmt"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"gopkg.in/yaml.v3"

	"github.com/unijord/cdmcheck/pkg/cel/ext"
	"github.com/unijord/cdmcheck/pkg/record"
	"github.com/unijord/cdmcheck/pkg/schema"
)

var (
	// ErrInvalidRule is returned when a rules file does not compile.
	ErrInvalidRule = errors.New("invalid rule")
	// ErrRuleFailed matches every *RuleError.
	ErrRuleFailed = errors.New("rule evaluation failed")
)

// Rules is the decoded rules file.
type Rules struct {
	Tables map[string]TableRules `yaml:"tables"`
}

// TableRules holds the rules of one table.
type TableRules struct {
	// Defaults maps a column to an expression evaluated when the column is
	// absent, null or empty. A null result leaves the column untouched.
	Defaults map[string]string `yaml:"defaults"`
	// Filter is a bool expression; rows where it is false are skipped.
	Filter string `yaml:"filter"`
}

// ParseRules decodes a YAML rules document.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: decode rules: %v", ErrInvalidRule, err)
	}
	return &r, nil
}

// ReadRules reads and decodes a rules file.
func ReadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}

// RuleError reports an expression that failed for one row.
type RuleError struct {
	Table      string
	Column     string
	Expression string
	Err        error
}

func (e *RuleError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("filter on %s failed: %v (expr: %s)", e.Table, e.Err, e.Expression)
	}
	return fmt.Sprintf("default for %s.%s failed: %v (expr: %s)", e.Table, e.Column, e.Err, e.Expression)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

func (e *RuleError) Is(target error) bool {
	return target == ErrRuleFailed
}

type compiledExpr struct {
	source  string
	program cel.Program
}

type compiledDefault struct {
	column  string
	colType schema.ColumnType
	expr    compiledExpr
}

type compiledTable struct {
	defaults []compiledDefault
	filter   *compiledExpr
}

// Enricher applies compiled rules. It is immutable and safe for concurrent use.
type Enricher struct {
	tables map[string]*compiledTable
}

// NewEnv builds the CEL environment rule expressions compile against.
func NewEnv() (*cel.Env, error) {
	opts := []cel.EnvOption{
		cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
		Funcs(),
	}
	return cel.NewEnv(append(opts, ext.AllFuncs()...)...)
}

// Compile checks rules against the registry and compiles every expression.
// Unknown tables or columns are compile errors.
func Compile(rules *Rules, reg *schema.Registry) (*Enricher, error) {
	env, err := NewEnv()
	if err != nil {
		return nil, fmt.Errorf("build cel env: %w", err)
	}

	e := &Enricher{tables: make(map[string]*compiledTable)}
	if rules == nil {
		return e, nil
	}

	for table, tr := range rules.Tables {
		ts, err := reg.Get(table)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}

		ct := &compiledTable{}
		// schema order keeps evaluation deterministic when one default reads another
		for i := 0; i < ts.Len(); i++ {
			col := ts.At(i).Name
			colType := ts.At(i).Type
			src, ok := tr.Defaults[col]
			if !ok {
				continue
			}
			expr, err := compileExpr(env, src, nil)
			if err != nil {
				return nil, fmt.Errorf("%w: default %s.%s: %v", ErrInvalidRule, table, col, err)
			}
			ct.defaults = append(ct.defaults, compiledDefault{column: col, colType: colType, expr: expr})
		}
		for col := range tr.Defaults {
			if !ts.Has(col) {
				return nil, fmt.Errorf("%w: default for undeclared column %s.%s", ErrInvalidRule, table, col)
			}
		}

		if tr.Filter != "" {
			expr, err := compileExpr(env, tr.Filter, cel.BoolType)
			if err != nil {
				return nil, fmt.Errorf("%w: filter %s: %v", ErrInvalidRule, table, err)
			}
			ct.filter = &expr
		}
		e.tables[table] = ct
	}
	return e, nil
}

func compileExpr(env *cel.Env, src string, want *cel.Type) (compiledExpr, error) {
	ast, issues := env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return compiledExpr{}, fmt.Errorf("compile: %w", issues.Err())
	}
	if want != nil && !ast.OutputType().IsExactType(want) {
		return compiledExpr{}, fmt.Errorf("expression must return %s, got %s", want, ast.OutputType())
	}
	prog, err := env.Program(ast, cel.EvalOptions(cel.OptOptimize))
	if err != nil {
		return compiledExpr{}, fmt.Errorf("program: %w", err)
	}
	return compiledExpr{source: src, program: prog}, nil
}

// HasRules reports whether any rule targets table.
func (e *Enricher) HasRules(table string) bool {
	_, ok := e.tables[table]
	return ok
}

// Apply fills defaults on a copy of rec and evaluates the filter. keep is
// false when the filter rejected the row. rec itself is never modified.
func (e *Enricher) Apply(table string, rec record.Record) (out record.Record, keep bool, err error) {
	ct, ok := e.tables[table]
	if !ok {
		return rec, true, nil
	}

	out = rec.Clone()
	for _, d := range ct.defaults {
		if v, present := out[d.column]; present && !record.IsEmpty(d.colType, v) {
			continue
		}
		val, err := eval(d.expr, out)
		if err != nil {
			return nil, false, &RuleError{Table: table, Column: d.column, Expression: d.expr.source, Err: err}
		}
		if val != nil {
			out[d.column] = val
		}
	}

	if ct.filter == nil {
		return out, true, nil
	}
	val, err := eval(*ct.filter, out)
	if err != nil {
		return nil, false, &RuleError{Table: table, Expression: ct.filter.source, Err: err}
	}
	keep, _ = val.(bool)
	return out, keep, nil
}

// eval runs expr with row bound to rec. A null result is returned as nil.
func eval(expr compiledExpr, rec record.Record) (any, error) {
	row := make(map[string]any, len(rec))
	for k, v := range rec {
		row[k] = celValue(v)
	}
	out, _, err := expr.program.Eval(map[string]any{"row": row})
	if err != nil {
		return nil, err
	}
	if out.Type() == types.NullType {
		return nil, nil
	}
	return out.Value(), nil
}

// celValue maps record values onto types the default CEL adapter understands.
// Nulls become absent-equivalent nil so isNull/coalesce work on them.
func celValue(v any) any {
	switch val := v.(type) {
	case record.Null, *record.Null:
		return nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	case strfmt.Date:
		return record.Format(val)
	default:
		return val
	}
}
