// Package validate checks raw records against table schemas and normalizes
// their values.
package validate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/unijord/cdmcheck/pkg/record"
	"github.com/unijord/cdmcheck/pkg/schema"
)

// ErrRejected matches every *RejectedError.
var ErrRejected = errors.New("record rejected")

// Policy decides what happens to fields the schema does not declare.
type Policy uint8

const (
	// Lenient drops undeclared fields silently.
	Lenient Policy = iota
	// Strict rejects a record carrying undeclared fields.
	Strict
)

func (p Policy) String() string {
	switch p {
	case Lenient:
		return "lenient"
	case Strict:
		return "strict"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// ParsePolicy maps "lenient" or "strict" to a Policy. An empty string is lenient.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lenient":
		return Lenient, nil
	case "strict":
		return Strict, nil
	default:
		return 0, fmt.Errorf("unknown policy %q: must be 'lenient' or 'strict'", s)
	}
}

// Validator validates records against schemas from a Registry. It holds no
// mutable state and is safe for concurrent use.
type Validator struct {
	registry *schema.Registry
	policy   Policy
}

// New creates a validator over registry.
func New(registry *schema.Registry, policy Policy) *Validator {
	return &Validator{registry: registry, policy: policy}
}

// Policy returns the unknown-column policy.
func (v *Validator) Policy() Policy {
	return v.policy
}

// Registry returns the registry schemas are resolved from.
func (v *Validator) Registry() *schema.Registry {
	return v.registry
}

// Validate checks rec against the schema of table. The only errors are
// lookup failures; a bad record is reported through Result.Violations.
func (v *Validator) Validate(table string, rec record.Record) (*Result, error) {
	ts, err := v.registry.Get(table)
	if err != nil {
		return nil, err
	}
	return v.ValidateSchema(ts, rec), nil
}

// ValidateSchema checks rec against an already resolved schema.
func (v *Validator) ValidateSchema(ts *schema.TableSchema, rec record.Record) *Result {
	out := make(record.Record, ts.Len())
	var violations []ColumnViolation

	for i := 0; i < ts.Len(); i++ {
		col := ts.At(i)
		raw, present := rec[col.Name]

		if !present {
			if col.Required() {
				violations = append(violations, ColumnViolation{Column: col.Name, Reason: ReasonMissing})
				continue
			}
			out[col.Name] = record.Null{Type: col.Type}
			continue
		}

		if record.IsEmpty(col.Type, raw) {
			if col.Required() {
				violations = append(violations, ColumnViolation{Column: col.Name, Reason: ReasonNull})
				continue
			}
			out[col.Name] = record.Null{Type: col.Type}
			continue
		}

		val, ok := coerce(col.Type, raw)
		if !ok {
			violations = append(violations, ColumnViolation{Column: col.Name, Reason: TypeMismatch(col.Type)})
			continue
		}
		out[col.Name] = val
	}

	if v.policy == Strict {
		var unknown []string
		for name := range rec {
			if !ts.Has(name) {
				unknown = append(unknown, name)
			}
		}
		sort.Strings(unknown)
		for _, name := range unknown {
			violations = append(violations, ColumnViolation{Column: name, Reason: UnknownColumn(name)})
		}
	}

	if len(violations) > 0 {
		return &Result{Table: ts.Name(), Violations: violations}
	}
	return &Result{Table: ts.Name(), Record: out}
}
