package schema

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_SurveyConduct(t *testing.T) {
	def, err := ReadFile(filepath.Join("testdata", "survey_conduct.json"))
	require.NoError(t, err)
	assert.Equal(t, "survey_conduct", def.Table)

	reg, err := Load([]Definition{def})
	require.NoError(t, err)

	table, err := reg.Get("survey_conduct")
	require.NoError(t, err)
	assert.Equal(t, 22, table.Len())
	assert.Equal(t, "survey_conduct_id", table.At(0).Name)

	col, ok := table.Column("survey_conduct_id")
	require.True(t, ok)
	assert.Equal(t, TypeInteger, col.Type)
	assert.Equal(t, ModeRequired, col.Mode)

	col, ok = table.Column("survey_start_date")
	require.True(t, ok)
	assert.Equal(t, TypeDate, col.Type)
	assert.Equal(t, ModeNullable, col.Mode)

	assert.Equal(t, []string{
		"survey_conduct_id",
		"person_id",
		"survey_concept_id",
		"survey_end_datetime",
		"assisted_concept_id",
		"respondent_type_concept_id",
		"timing_concept_id",
		"collection_method_concept_id",
		"survey_source_concept_id",
		"validated_survey_concept_id",
	}, table.Required())
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		defs []Definition
	}{
		{
			name: "duplicate table",
			defs: []Definition{
				{Table: "a", Fields: []FieldDef{{Name: "id", Type: "integer", Mode: "required"}}},
				{Table: "a", Fields: []FieldDef{{Name: "id", Type: "integer", Mode: "required"}}},
			},
		},
		{
			name: "duplicate column",
			defs: []Definition{
				{Table: "a", Fields: []FieldDef{
					{Name: "id", Type: "integer", Mode: "required"},
					{Name: "id", Type: "string", Mode: "nullable"},
				}},
			},
		},
		{
			name: "bad mode",
			defs: []Definition{
				{Table: "a", Fields: []FieldDef{{Name: "id", Type: "integer", Mode: "repeated"}}},
			},
		},
		{
			name: "bad type",
			defs: []Definition{
				{Table: "a", Fields: []FieldDef{{Name: "id", Type: "record", Mode: "required"}}},
			},
		},
		{
			name: "empty table name",
			defs: []Definition{
				{Table: " ", Fields: []FieldDef{{Name: "id", Type: "integer", Mode: "required"}}},
			},
		},
		{
			name: "empty column name",
			defs: []Definition{
				{Table: "a", Fields: []FieldDef{{Name: "", Type: "integer", Mode: "required"}}},
			},
		},
		{
			name: "no columns",
			defs: []Definition{{Table: "a"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := Load(tt.defs)
			require.Error(t, err)
			assert.Nil(t, reg)
			assert.True(t, IsSchemaError(err))

			var se *SchemaError
			require.True(t, errors.As(err, &se))
		})
	}
}

func TestLoad_ErrorNamesColumn(t *testing.T) {
	_, err := Load([]Definition{
		{Table: "person", Fields: []FieldDef{
			{Name: "person_id", Type: "integer", Mode: "required"},
			{Name: "gender", Type: "enum", Mode: "required"},
		}},
	})
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "person", se.Table)
	assert.Equal(t, "gender", se.Column)
	assert.Contains(t, err.Error(), `"enum"`)
}

func TestLoad_CaseInsensitiveEnums(t *testing.T) {
	reg, err := Load([]Definition{
		{Table: "t", Fields: []FieldDef{
			{Name: "a", Type: "INTEGER", Mode: "REQUIRED"},
			{Name: "b", Type: "Float64", Mode: "Nullable"},
			{Name: "c", Type: "BOOL", Mode: "nullable"},
			{Name: "d", Type: "DATETIME", Mode: "nullable"},
		}},
	})
	require.NoError(t, err)

	table, err := reg.Get("t")
	require.NoError(t, err)
	assert.Equal(t, TypeInteger, table.At(0).Type)
	assert.Equal(t, TypeFloat, table.At(1).Type)
	assert.Equal(t, TypeBoolean, table.At(2).Type)
	assert.Equal(t, TypeTimestamp, table.At(3).Type)
	assert.Equal(t, ModeRequired, table.At(0).Mode)
}

func TestLoad_WithAllNullable(t *testing.T) {
	def, err := ReadFile(filepath.Join("testdata", "survey_conduct.json"))
	require.NoError(t, err)

	reg, err := Load([]Definition{def}, WithAllNullable())
	require.NoError(t, err)

	table, err := reg.Get("survey_conduct")
	require.NoError(t, err)
	assert.Empty(t, table.Required())
}

func TestRegistry_GetUnknown(t *testing.T) {
	reg, err := Load(nil)
	require.NoError(t, err)

	_, err = reg.Get("observation")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.True(t, errors.Is(err, ErrTableNotFound))
	assert.False(t, IsSchemaError(err))
	assert.Equal(t, `table "observation" not found`, err.Error())
}

func TestRegistry_ColumnsIsACopy(t *testing.T) {
	reg, err := Load([]Definition{
		{Table: "t", Fields: []FieldDef{{Name: "a", Type: "string", Mode: "required"}}},
	})
	require.NoError(t, err)
	table, err := reg.Get("t")
	require.NoError(t, err)

	cols := table.Columns()
	cols[0].Name = "mutated"
	assert.Equal(t, "a", table.At(0).Name)
}

func TestRegistry_ConcurrentGet(t *testing.T) {
	reg, err := LoadDir("testdata")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				table, err := reg.Get("survey_conduct")
				if err != nil || table.Len() != 22 {
					t.Errorf("unexpected lookup result: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestReadDir_MixedFormats(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "person.json", `[
		{"name": "person_id", "type": "integer", "mode": "required", "description": ""},
		{"name": "birth_datetime", "type": "timestamp", "mode": "nullable"}
	]`)
	writeFile(t, dir, "note.yaml", `
- name: note_id
  type: integer
  mode: required
- name: note_text
  type: string
  mode: nullable
  description: free text
`)
	writeFile(t, dir, "README.md", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	reg, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"note", "person"}, reg.Tables())

	note, err := reg.Get("note")
	require.NoError(t, err)
	assert.Equal(t, []string{"note_id", "note_text"}, note.ColumnNames())
	assert.Equal(t, "free text", note.At(1).Description)
}

func TestParseJSON_ShapeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"object instead of array", `{"name": "a"}`},
		{"missing mode", `[{"name": "a", "type": "integer"}]`},
		{"type not string", `[{"name": "a", "type": 5, "mode": "required"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJSON("t", []byte(tt.doc))
			require.Error(t, err)
			assert.True(t, IsSchemaError(err))
		})
	}
}

func TestReadFile_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "person.csv", "person_id")
	_, err := ReadFile(filepath.Join(dir, "person.csv"))
	require.Error(t, err)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
