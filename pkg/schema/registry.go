package schema

import (
	"sort"
	"strings"
)

// Option adjusts how definitions are loaded.
type Option func(*loadOptions)

type loadOptions struct {
	allNullable bool
}

// WithAllNullable overrides every column mode to nullable.
// Useful for loading partial fixtures in tests.
func WithAllNullable() Option {
	return func(o *loadOptions) {
		o.allNullable = true
	}
}

// Registry indexes table schemas by name. It is built once by Load and never
// mutated afterwards, so it can be shared by any number of goroutines.
type Registry struct {
	tables map[string]*TableSchema
	names  []string
}

// Load validates definitions and builds a Registry. Any malformed definition
// fails the whole load with a *SchemaError.
func Load(defs []Definition, opts ...Option) (*Registry, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	r := &Registry{
		tables: make(map[string]*TableSchema, len(defs)),
		names:  make([]string, 0, len(defs)),
	}

	for _, def := range defs {
		name := strings.TrimSpace(def.Table)
		if name == "" {
			return nil, &SchemaError{Reason: "table name is empty"}
		}
		if _, exists := r.tables[name]; exists {
			return nil, &SchemaError{Table: name, Reason: "duplicate table name"}
		}

		table, err := buildTable(name, def.Fields, o)
		if err != nil {
			return nil, err
		}
		r.tables[name] = table
		r.names = append(r.names, name)
	}

	sort.Strings(r.names)
	return r, nil
}

func buildTable(name string, fields []FieldDef, o loadOptions) (*TableSchema, error) {
	if len(fields) == 0 {
		return nil, &SchemaError{Table: name, Reason: "no columns declared"}
	}

	columns := make([]ColumnSpec, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return nil, &SchemaError{Table: name, Reason: "column name is empty"}
		}
		if _, dup := seen[f.Name]; dup {
			return nil, &SchemaError{Table: name, Column: f.Name, Reason: "duplicate column name"}
		}
		seen[f.Name] = struct{}{}

		typ, err := ParseColumnType(f.Type)
		if err != nil {
			return nil, &SchemaError{Table: name, Column: f.Name, Reason: err.Error()}
		}
		mode, err := ParseMode(f.Mode)
		if err != nil {
			return nil, &SchemaError{Table: name, Column: f.Name, Reason: err.Error()}
		}
		if o.allNullable {
			mode = ModeNullable
		}

		columns = append(columns, ColumnSpec{
			Name:        f.Name,
			Type:        typ,
			Mode:        mode,
			Description: f.Description,
		})
	}
	return newTableSchema(name, columns), nil
}

// LoadDir reads every definition file in dir and loads them.
func LoadDir(dir string, opts ...Option) (*Registry, error) {
	defs, err := ReadDir(dir)
	if err != nil {
		return nil, err
	}
	return Load(defs, opts...)
}

// Get returns the schema for table.
func (r *Registry) Get(table string) (*TableSchema, error) {
	s, ok := r.tables[table]
	if !ok {
		return nil, &NotFoundError{Table: table}
	}
	return s, nil
}

// Tables returns the loaded table names in sorted order.
func (r *Registry) Tables() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of loaded tables.
func (r *Registry) Len() int {
	return len(r.tables)
}
