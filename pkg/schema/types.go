package schema

import (
	"fmt"
	"strings"
)

// ColumnType is the scalar type of a column.
type ColumnType uint8

const (
	TypeInteger ColumnType = iota + 1
	TypeString
	TypeDate
	TypeTimestamp
	TypeFloat
	TypeBoolean
)

func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeString:
		return "string"
	case TypeDate:
		return "date"
	case TypeTimestamp:
		return "timestamp"
	case TypeFloat:
		return "float"
	case TypeBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// ParseColumnType maps a definition type string to a ColumnType.
// BigQuery spellings (INTEGER, INT64, FLOAT64, BOOL, DATETIME) are accepted.
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer", "int64":
		return TypeInteger, nil
	case "string":
		return TypeString, nil
	case "date":
		return TypeDate, nil
	case "timestamp", "datetime":
		return TypeTimestamp, nil
	case "float", "float64":
		return TypeFloat, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	default:
		return 0, fmt.Errorf("unrecognized column type %q", s)
	}
}

// Mode says whether a column may hold null.
type Mode uint8

const (
	ModeRequired Mode = iota + 1
	ModeNullable
)

func (m Mode) String() string {
	switch m {
	case ModeRequired:
		return "required"
	case ModeNullable:
		return "nullable"
	default:
		return "unknown"
	}
}

// ParseMode maps a definition mode string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "required":
		return ModeRequired, nil
	case "nullable":
		return ModeNullable, nil
	default:
		return 0, fmt.Errorf("unrecognized column mode %q", s)
	}
}

// ColumnSpec describes one declared column.
type ColumnSpec struct {
	Name        string
	Type        ColumnType
	Mode        Mode
	Description string
}

// Required reports whether the column rejects null.
func (c ColumnSpec) Required() bool {
	return c.Mode == ModeRequired
}

// TableSchema is the ordered, immutable column list of one table.
type TableSchema struct {
	name    string
	columns []ColumnSpec
	index   map[string]int
}

func newTableSchema(name string, columns []ColumnSpec) *TableSchema {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c.Name] = i
	}
	return &TableSchema{name: name, columns: columns, index: index}
}

// Name returns the table name.
func (s *TableSchema) Name() string { return s.name }

// Len returns the number of declared columns.
func (s *TableSchema) Len() int { return len(s.columns) }

// At returns the i-th column in declaration order.
func (s *TableSchema) At(i int) ColumnSpec { return s.columns[i] }

// Columns returns a copy of the declared columns.
func (s *TableSchema) Columns() []ColumnSpec {
	out := make([]ColumnSpec, len(s.columns))
	copy(out, s.columns)
	return out
}

// Column looks up a column by name.
func (s *TableSchema) Column(name string) (ColumnSpec, bool) {
	i, ok := s.index[name]
	if !ok {
		return ColumnSpec{}, false
	}
	return s.columns[i], true
}

// Has reports whether name is a declared column.
func (s *TableSchema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// ColumnNames returns the column names in declaration order.
func (s *TableSchema) ColumnNames() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.Name
	}
	return names
}

// Required returns the names of the required columns in declaration order.
func (s *TableSchema) Required() []string {
	var names []string
	for _, c := range s.columns {
		if c.Required() {
			names = append(names, c.Name)
		}
	}
	return names
}
