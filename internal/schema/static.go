package schema

import (
	"context"
)

// Static is an in-memory Introspector over a fixed set of table schemas.
// Unknown tables have no columns.
type Static struct {
	tables map[string][]Column
}

// NewStatic builds an introspector from the given schemas
func NewStatic(schemas ...ColumnSchema) *Static {
	s := &Static{tables: make(map[string][]Column, len(schemas))}
	for _, cs := range schemas {
		s.tables[cs.Table] = append([]Column(nil), cs.Columns...)
	}

	return s
}

func (s *Static) ColumnType(_ context.Context, table, column string) (PrimitiveType, error) {
	for _, c := range s.tables[table] {
		if c.Name == column {
			return c.Type, nil
		}
	}

	return TypeUnknown, nil
}

func (s *Static) HasColumn(_ context.Context, table, column string) (bool, error) {
	for _, c := range s.tables[table] {
		if c.Name == column {
			return true, nil
		}
	}

	return false, nil
}

func (s *Static) ColumnListing(_ context.Context, table string) ([]string, error) {
	cols := s.tables[table]
	names := make([]string, 0, len(cols))

	for _, c := range cols {
		names = append(names, c.Name)
	}

	return names, nil
}
