package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// FieldDef is one column entry exactly as it appears in a definition file.
type FieldDef struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Mode        string `json:"mode" yaml:"mode"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Definition is the declarative source of one table schema.
type Definition struct {
	Table  string
	Fields []FieldDef
}

// definitionSchema checks the shape of a definition file. Enumerated values
// are left to Load so the error names the offending column.
const definitionSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"type": {"type": "string"},
			"mode": {"type": "string"},
			"description": {"type": "string"}
		},
		"required": ["name", "type", "mode"]
	}
}`

var definitionValidator = jsonschema.MustCompileString("definition.json", definitionSchema)

// ParseJSON decodes a JSON definition: an array of {name, type, mode, description}.
func ParseJSON(table string, data []byte) (Definition, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Definition{}, &SchemaError{Table: table, Reason: fmt.Sprintf("decode json: %v", err)}
	}
	if err := definitionValidator.Validate(doc); err != nil {
		return Definition{}, &SchemaError{Table: table, Reason: err.Error()}
	}

	var fields []FieldDef
	if err := json.Unmarshal(data, &fields); err != nil {
		return Definition{}, &SchemaError{Table: table, Reason: fmt.Sprintf("decode fields: %v", err)}
	}
	return Definition{Table: table, Fields: fields}, nil
}

// ParseYAML decodes a YAML definition with the same shape as ParseJSON.
func ParseYAML(table string, data []byte) (Definition, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Definition{}, &SchemaError{Table: table, Reason: fmt.Sprintf("decode yaml: %v", err)}
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return Definition{}, &SchemaError{Table: table, Reason: fmt.Sprintf("convert yaml: %v", err)}
	}
	return ParseJSON(table, asJSON)
}

// ReadFile parses a definition file. The table name is the file name
// without its extension.
func ReadFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read definition: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	table := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch ext {
	case ".json":
		return ParseJSON(table, data)
	case ".yaml", ".yml":
		return ParseYAML(table, data)
	default:
		return Definition{}, fmt.Errorf("unsupported definition file %q", path)
	}
}

// ReadDir parses every .json, .yaml and .yml file in dir, sorted by file name.
// Subdirectories and other files are ignored.
func ReadDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		def, err := ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
