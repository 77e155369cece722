package filter

import (
	"errors"
	"testing"

	"github.com/Sternrassler/mstr-client/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name        string
		expression  string
		wantErr     bool
		errContains string
	}{
		{name: "simple comparison", expression: `Revenue > 100`},
		{name: "helpers", expression: `contains(name, "sales") and not hidden`},
		{name: "row index", expression: `row["Region@DESC"] == "North"`},
		{name: "empty", expression: "  ", wantErr: true, errContains: "empty expression"},
		{name: "invalid syntax", expression: `name == "unclosed`, wantErr: true},
		{name: "not boolean", expression: `1 + 2`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile(tt.expression)
			if tt.wantErr {
				require.Error(t, err)
				var compErr *CompilationError
				assert.True(t, errors.As(err, &compErr))
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expression, f.String())
		})
	}
}

func TestFilter_Match(t *testing.T) {
	row := pagination.Row{
		"name":        "Sales Overview",
		"hidden":      false,
		"Revenue":     250.5,
		"Region@DESC": "North",
		"dateCreated": "2024-03-01T10:15:00.000+0000",
	}

	tests := []struct {
		expression string
		want       bool
	}{
		{`Revenue > 100`, true},
		{`Revenue > 1000`, false},
		{`contains(name, "SALES")`, true},
		{`startsWith(name, "sales") and not hidden`, true},
		{`row["Region@DESC"] in ["North", "South"]`, true},
		{`missing == "x"`, false},
		{`parseTime(dateCreated) < now()`, true},
		{`parseTime(dateCreated).Year() == 2024`, true},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			f, err := Compile(tt.expression)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Match(row))
		})
	}
}

func TestFilter_EvaluationError(t *testing.T) {
	f, err := Compile(`lower(name) == "x"`)
	require.NoError(t, err)

	ok, err := f.Evaluate(pagination.Row{"name": 42})
	assert.False(t, ok)
	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.False(t, f.Match(pagination.Row{"name": 42}))
}

func TestEquals(t *testing.T) {
	rows := []pagination.Row{
		{"id": "1", "name": "Daily", "type": 39, "owner": map[string]any{"name": "admin"}},
		{"id": "2", "name": "Weekly", "type": 39.0, "owner": map[string]any{"name": "analyst"}},
		{"id": "3", "name": "Daily", "type": 8, "owner": map[string]any{"name": "admin"}},
	}

	kept := Equals(map[string]any{"name": "Daily", "type": 39}).Apply(rows)
	require.Len(t, kept, 1)
	assert.Equal(t, "1", kept[0]["id"])

	kept = Equals(map[string]any{"type": "39"}).Apply(rows)
	assert.Len(t, kept, 2, "numbers compare by value")

	kept = Equals(map[string]any{"owner.name": "admin"}).Apply(rows)
	assert.Len(t, kept, 2)

	kept = Equals(map[string]any{"owner.missing": "admin"}).Apply(rows)
	assert.Empty(t, kept)
}

func TestNilFilter(t *testing.T) {
	var f *Filter
	rows := []pagination.Row{{"a": 1}, {"a": 2}}

	assert.Nil(t, Equals(nil))
	assert.True(t, f.Match(rows[0]))
	assert.Equal(t, rows, f.Apply(rows))
	assert.Equal(t, "<all>", f.String())
}
