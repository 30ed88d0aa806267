package schema

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSchema = errors.New("invalid schema")
	ErrTableNotFound = errors.New("table not found")
)

// SchemaError reports a malformed definition. It is fatal at load time.
type SchemaError struct {
	Table  string
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	switch {
	case e.Table == "":
		return fmt.Sprintf("invalid schema: %s", e.Reason)
	case e.Column == "":
		return fmt.Sprintf("invalid schema %q: %s", e.Table, e.Reason)
	default:
		return fmt.Sprintf("invalid schema %q column %q: %s", e.Table, e.Column, e.Reason)
	}
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrInvalidSchema
}

// NotFoundError is returned when a table has no loaded schema.
type NotFoundError struct {
	Table string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("table %q not found", e.Table)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrTableNotFound
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTableNotFound)
}

// IsSchemaError checks if an error is a schema definition error.
func IsSchemaError(err error) bool {
	return errors.Is(err, ErrInvalidSchema)
}
