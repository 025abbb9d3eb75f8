package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kyleking/lyre/internal/cache"
	"github.com/kyleking/lyre/internal/schema"
)

const columnsQuery = `
	SELECT column_name, data_type
	FROM information_schema.columns
	WHERE table_name = ?
	ORDER BY ordinal_position`

var errNoSuchTable = errors.New("table has no columns")

type columnRow struct {
	Name string `db:"column_name"`
	Type string `db:"data_type"`
}

// Introspector implements schema.Introspector over information_schema.
// Column sets are cached per table; missing tables are not cached.
type Introspector struct {
	db     *sqlx.DB
	tables *cache.Cache[string, []schema.Column]
}

var _ schema.Introspector = (*Introspector)(nil)

// NewIntrospector creates an introspector caching up to size tables
func NewIntrospector(db *sqlx.DB, size int) (*Introspector, error) {
	tables, err := cache.New[string, []schema.Column](size)
	if err != nil {
		return nil, err
	}

	return &Introspector{db: db, tables: tables}, nil
}

// Columns returns the typed columns of table in ordinal order
func (i *Introspector) Columns(ctx context.Context, table string) ([]schema.Column, error) {
	cols, err := i.tables.GetOrSet(table, func() ([]schema.Column, error) {
		var rows []columnRow
		if err := i.db.SelectContext(ctx, &rows, columnsQuery, table); err != nil {
			return nil, fmt.Errorf("failed to describe table %s: %w", table, err)
		}

		if len(rows) == 0 {
			return nil, errNoSuchTable
		}

		cols := make([]schema.Column, len(rows))
		for n, r := range rows {
			cols[n] = schema.Column{Name: r.Name, Type: schema.ParseSQLType(r.Type)}
		}

		return cols, nil
	})
	if errors.Is(err, errNoSuchTable) {
		return nil, nil
	}

	return cols, err
}

func (i *Introspector) ColumnType(ctx context.Context, table, column string) (schema.PrimitiveType, error) {
	cols, err := i.Columns(ctx, table)
	if err != nil {
		return schema.TypeUnknown, err
	}

	for _, c := range cols {
		if c.Name == column {
			return c.Type, nil
		}
	}

	return schema.TypeUnknown, nil
}

func (i *Introspector) HasColumn(ctx context.Context, table, column string) (bool, error) {
	cols, err := i.Columns(ctx, table)
	if err != nil {
		return false, err
	}

	for _, c := range cols {
		if c.Name == column {
			return true, nil
		}
	}

	return false, nil
}

func (i *Introspector) ColumnListing(ctx context.Context, table string) ([]string, error) {
	cols, err := i.Columns(ctx, table)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(cols))
	for n, c := range cols {
		names[n] = c.Name
	}

	return names, nil
}

// Reset forgets every cached table, for use after schema changes
func (i *Introspector) Reset() {
	i.tables.Clear()
}

// Stats reports cache effectiveness
func (i *Introspector) Stats() cache.Stats {
	return i.tables.GetStats()
}
