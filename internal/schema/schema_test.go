package schema

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSQLType(t *testing.T) {
	tests := []struct {
		input    string
		expected PrimitiveType
	}{
		{"INTEGER", TypeInteger},
		{"bigint", TypeInteger},
		{"DOUBLE", TypeFloat},
		{"DECIMAL(10,2)", TypeFloat},
		{"DATE", TypeDate},
		{"TIMESTAMP", TypeDateTime},
		{"TIMESTAMP WITH TIME ZONE", TypeDateTime},
		{"BOOLEAN", TypeBoolean},
		{"VARCHAR", TypeString},
		{"", TypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseSQLType(tt.input))
		})
	}
}

func TestColumnSchemaSerializable(t *testing.T) {
	s := ColumnSchema{
		Table: "documents",
		Columns: []Column{
			{Name: "id", Type: TypeInteger},
			{Name: "title", Type: TypeString},
			{Name: "owner_id", Type: TypeInteger},
		},
		IDColumn:   "id",
		NameColumn: "title",
		Foreign:    []string{"owner_id"},
	}

	assert.Equal(t, []string{"id", "title"}, s.Serializable())
	assert.Equal(t, []string{"id", "title", "owner_id"}, s.Names())
	assert.True(t, s.Has("owner_id"))
	assert.True(t, s.IsForeign("owner_id"))
	assert.Equal(t, TypeString, s.TypeOf("title"))
	assert.Equal(t, TypeUnknown, s.TypeOf("missing"))
}

func TestStaticIntrospector(t *testing.T) {
	ctx := context.Background()
	in := NewStatic(ColumnSchema{
		Table:   "invoices",
		Columns: []Column{{Name: "id", Type: TypeInteger}, {Name: "amount", Type: TypeFloat}},
	})

	typ, err := in.ColumnType(ctx, "invoices", "amount")
	require.NoError(t, err)
	assert.Equal(t, TypeFloat, typ)

	ok, err := in.HasColumn(ctx, "invoices", "status")
	require.NoError(t, err)
	assert.False(t, ok)

	cols, err := in.ColumnListing(ctx, "ghosts")
	require.NoError(t, err)
	assert.Empty(t, cols)

	described, err := Describe(ctx, in, ColumnSchema{Table: "invoices", IDColumn: "id"})
	require.NoError(t, err)
	assert.Equal(t, "id", described.IDColumn)
	assert.Len(t, described.Columns, 2)
}

func TestCoerce(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		typ      PrimitiveType
		input    any
		expected any
	}{
		{"integer", TypeInteger, "42", int64(42)},
		{"bad integer kept", TypeInteger, "abc", "abc"},
		{"float", TypeFloat, "9.5", 9.5},
		{"boolean", TypeBoolean, "yes", true},
		{"date", TypeDate, "2024-03-01", day},
		{"string", TypeString, "paid", "paid"},
		{"non string", TypeInteger, 7, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Coerce(tt.typ, tt.input))
		})
	}
}

func TestMatchable(t *testing.T) {
	tests := []struct {
		typ  PrimitiveType
		raw  string
		want bool
	}{
		{TypeInteger, "12", true},
		{TypeInteger, "abc", false},
		{TypeFloat, "1.5", true},
		{TypeFloat, "x", false},
		{TypeDate, "2024-03-01", true},
		{TypeDate, "notadate", false},
		{TypeDateTime, "yesterday", false},
		{TypeBoolean, "maybe", false},
		{TypeBoolean, "yes", true},
		{TypeString, "anything", true},
		{TypeUnknown, "anything", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ)+"/"+tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Matchable(tt.typ, Coerce(tt.typ, tt.raw)))
		})
	}

	assert.True(t, Matchable(TypeInteger, nil))
}
