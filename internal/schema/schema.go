package schema

import (
	"context"
	"slices"
	"strings"
)

// PrimitiveType is the coarse type the query layer coerces filter values into
type PrimitiveType string

const (
	TypeInteger  PrimitiveType = "integer"
	TypeFloat    PrimitiveType = "float"
	TypeDate     PrimitiveType = "date"
	TypeDateTime PrimitiveType = "datetime"
	TypeString   PrimitiveType = "string"
	TypeBoolean  PrimitiveType = "boolean"
	TypeUnknown  PrimitiveType = "unknown"
)

// IsNumeric reports whether values of t compare numerically
func (t PrimitiveType) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// IsTemporal reports whether values of t are calendar values
func (t PrimitiveType) IsTemporal() bool {
	return t == TypeDate || t == TypeDateTime
}

// ParseSQLType maps an engine type name (as reported by information_schema) to a PrimitiveType
func ParseSQLType(sqlType string) PrimitiveType {
	t := strings.ToUpper(strings.TrimSpace(sqlType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}

	switch t {
	case "":
		return TypeUnknown
	case "TINYINT", "SMALLINT", "INTEGER", "INT", "BIGINT", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT", "INT2", "INT4", "INT8":
		return TypeInteger
	case "FLOAT", "REAL", "DOUBLE", "DECIMAL", "NUMERIC", "FLOAT4", "FLOAT8":
		return TypeFloat
	case "DATE":
		return TypeDate
	case "BOOLEAN", "BOOL":
		return TypeBoolean
	}

	if strings.HasPrefix(t, "TIMESTAMP") || t == "DATETIME" {
		return TypeDateTime
	}

	return TypeString
}

// Column is a single named, typed column
type Column struct {
	Name string        `json:"name"`
	Type PrimitiveType `json:"type"`
}

// ColumnSchema describes the queryable surface of one table
type ColumnSchema struct {
	Table      string   `json:"table"`
	Columns    []Column `json:"columns,omitempty"`
	IDColumn   string   `json:"id_column"`
	NameColumn string   `json:"name_column,omitempty"`
	Foreign    []string `json:"foreign,omitempty"`
}

// Has reports whether the schema lists column
func (s ColumnSchema) Has(column string) bool {
	return slices.ContainsFunc(s.Columns, func(c Column) bool { return c.Name == column })
}

// TypeOf returns the primitive type of column, or TypeUnknown
func (s ColumnSchema) TypeOf(column string) PrimitiveType {
	for _, c := range s.Columns {
		if c.Name == column {
			return c.Type
		}
	}

	return TypeUnknown
}

// Names returns the column names in declaration order
func (s ColumnSchema) Names() []string {
	names := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		names = append(names, c.Name)
	}

	return names
}

// IsForeign reports whether column owns a relation
func (s ColumnSchema) IsForeign(column string) bool {
	return slices.Contains(s.Foreign, column)
}

// Serializable returns the columns that may be freely exposed and searched
func (s ColumnSchema) Serializable() []string {
	names := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		if !s.IsForeign(c.Name) {
			names = append(names, c.Name)
		}
	}

	return names
}

// Introspector answers schema questions about physical tables
type Introspector interface {
	ColumnType(ctx context.Context, table, column string) (PrimitiveType, error)
	HasColumn(ctx context.Context, table, column string) (bool, error)
	ColumnListing(ctx context.Context, table string) ([]string, error)
}

// Describe fills s.Columns from the introspector. Declared metadata is kept.
func Describe(ctx context.Context, in Introspector, s ColumnSchema) (ColumnSchema, error) {
	names, err := in.ColumnListing(ctx, s.Table)
	if err != nil {
		return s, err
	}

	s.Columns = make([]Column, 0, len(names))
	for _, name := range names {
		t, err := in.ColumnType(ctx, s.Table, name)
		if err != nil {
			return s, err
		}

		s.Columns = append(s.Columns, Column{Name: name, Type: t})
	}

	return s, nil
}
