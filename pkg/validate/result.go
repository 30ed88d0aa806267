package validate

import (
	"fmt"
	"strings"

	"github.com/unijord/cdmcheck/pkg/record"
	"github.com/unijord/cdmcheck/pkg/schema"
)

const (
	ReasonMissing  = "missing required column"
	ReasonNull     = "required column is null"
	reasonMismatch = "type mismatch: expected "
	reasonUnknown  = "unknown column: "
)

// ColumnViolation is a data-level rejection of one column. It is returned as
// data, never as an error.
type ColumnViolation struct {
	Column string `json:"column"`
	Reason string `json:"reason"`
}

func (v ColumnViolation) String() string {
	return v.Column + ": " + v.Reason
}

// TypeMismatch returns the violation reason for a failed coercion to t.
func TypeMismatch(t schema.ColumnType) string {
	return reasonMismatch + t.String()
}

// UnknownColumn returns the violation reason for an undeclared field.
func UnknownColumn(name string) string {
	return reasonUnknown + name
}

// Result is the outcome of validating one record. Exactly one of Record and
// Violations is set.
type Result struct {
	Table      string
	Record     record.Record
	Violations []ColumnViolation
}

// Valid reports whether the record passed.
func (r *Result) Valid() bool {
	return len(r.Violations) == 0
}

// Err returns nil for a valid result and a *RejectedError otherwise.
func (r *Result) Err() error {
	if r.Valid() {
		return nil
	}
	return &RejectedError{Table: r.Table, Violations: r.Violations}
}

// RejectedError wraps the violations of a record for callers that prefer an
// error value, e.g. when logging.
type RejectedError struct {
	Table      string
	Violations []ColumnViolation
}

func (e *RejectedError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("record rejected for %s: %s", e.Table, strings.Join(parts, "; "))
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}
