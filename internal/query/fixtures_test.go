package query

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kyleking/lyre/internal/registry"
	"github.com/kyleking/lyre/internal/schema"
)

func fixtureRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	reg, err := registry.New(
		registry.Entity{
			Name: "department", Table: "departments", NameColumn: "name", CreatedColumn: "created_at",
			Relations: map[string]registry.Relation{
				"users": {Kind: registry.HasMany, Target: "user", ForeignKey: "department_id"},
			},
		},
		registry.Entity{
			Name: "user", Table: "users", NameColumn: "name", CreatedColumn: "created_at",
			Foreign:      []string{"department_id"},
			StatusColumn: "status", Statuses: map[string]any{"active": 1, "inactive": 0}, ActiveValue: 1,
			Relations: map[string]registry.Relation{
				"department": {Kind: registry.BelongsTo, Target: "department", ForeignKey: "department_id"},
				"documents":  {Kind: registry.HasMany, Target: "document", ForeignKey: "owner_id"},
			},
		},
		registry.Entity{
			Name: "document", Table: "documents", NameColumn: "title", CreatedColumn: "created_at",
			Foreign: []string{"owner_id"},
			Relations: map[string]registry.Relation{
				"owner": {Kind: registry.BelongsTo, Target: "user", ForeignKey: "owner_id"},
			},
		},
		registry.Entity{
			Name: "invoice", Table: "invoices", NameColumn: "number", CreatedColumn: "created_at",
			Foreign:      []string{"customer_id"},
			StatusColumn: "status",
			Relations: map[string]registry.Relation{
				"customer": {Kind: registry.BelongsTo, Target: "user", ForeignKey: "customer_id"},
			},
		},
	)
	require.NoError(t, err)

	return reg
}

func fixtureIntrospector() *schema.Static {
	col := func(name string, t schema.PrimitiveType) schema.Column { return schema.Column{Name: name, Type: t} }

	return schema.NewStatic(
		schema.ColumnSchema{Table: "departments", Columns: []schema.Column{
			col("id", schema.TypeInteger), col("name", schema.TypeString), col("created_at", schema.TypeDateTime),
		}},
		schema.ColumnSchema{Table: "users", Columns: []schema.Column{
			col("id", schema.TypeInteger), col("name", schema.TypeString), col("email", schema.TypeString),
			col("department_id", schema.TypeInteger), col("status", schema.TypeInteger),
			col("created_at", schema.TypeDateTime),
		}},
		schema.ColumnSchema{Table: "documents", Columns: []schema.Column{
			col("id", schema.TypeInteger), col("title", schema.TypeString), col("body", schema.TypeString),
			col("owner_id", schema.TypeInteger), col("created_at", schema.TypeDateTime),
		}},
		schema.ColumnSchema{Table: "invoices", Columns: []schema.Column{
			col("id", schema.TypeInteger), col("number", schema.TypeString), col("status", schema.TypeString),
			col("amount", schema.TypeFloat), col("customer_id", schema.TypeInteger),
			col("issued_on", schema.TypeDate), col("created_at", schema.TypeDateTime),
		}},
	)
}

func fixtureResolver(t *testing.T, opts ...registry.ResolverOption) *registry.Resolver {
	t.Helper()

	res, err := registry.NewResolver(fixtureRegistry(t), opts...)
	require.NoError(t, err)

	return res
}

// recorder is a Queryable that records each builder call as a readable line
type recorder struct {
	table string
	ops   []string
	rows  []Row
	total int64
}

func newRecorder(table string) *recorder {
	return &recorder{table: table}
}

func (r *recorder) add(format string, args ...any) Queryable {
	return &recorder{
		table: r.table,
		ops:   append(slices.Clone(r.ops), fmt.Sprintf(format, args...)),
		rows:  r.rows,
		total: r.total,
	}
}

func (r *recorder) sub(table string, fn Constraint) string {
	if fn == nil {
		return ""
	}

	return strings.Join(fn(newRecorder(table)).(*recorder).ops, "; ")
}

func (r *recorder) Table() string { return r.table }

func (r *recorder) Where(c, op string, v any) Queryable { return r.add("where %s %s %v", c, op, v) }

func (r *recorder) OrWhere(c, op string, v any) Queryable { return r.add("or %s %s %v", c, op, v) }

func (r *recorder) WhereIn(c string, v []any) Queryable { return r.add("in %s %v", c, v) }

func (r *recorder) WhereBetween(c string, lo, hi any) Queryable {
	return r.add("between %s %v %v", c, lo, hi)
}

func (r *recorder) WhereNull(c string) Queryable { return r.add("null %s", c) }

func (r *recorder) OrWhereNull(c string) Queryable { return r.add("or null %s", c) }

func (r *recorder) WhereGroup(fn Constraint) Queryable {
	return r.add("group(%s)", r.sub(r.table, fn))
}

func (r *recorder) WhereHas(rel registry.RelationDescriptor, fn Constraint) Queryable {
	return r.add("has %s(%s)", rel.Name, r.sub(rel.RelatedTable, fn))
}

func (r *recorder) OrWhereHas(rel registry.RelationDescriptor, fn Constraint) Queryable {
	return r.add("or has %s(%s)", rel.Name, r.sub(rel.RelatedTable, fn))
}

func (r *recorder) WhereDoesntHave(rel registry.RelationDescriptor, fn Constraint) Queryable {
	return r.add("doesnt have %s(%s)", rel.Name, r.sub(rel.RelatedTable, fn))
}

func (r *recorder) Join(table, alias, left, right string) Queryable {
	return r.add("join %s as %s on %s = %s", table, alias, left, right)
}

func (r *recorder) OrderBy(c string, dir Direction) Queryable { return r.add("order %s %s", c, dir) }

func (r *recorder) InRandomOrder() Queryable { return r.add("random") }

func (r *recorder) Reorder() Queryable { return r.add("reorder") }

func (r *recorder) Limit(n int) Queryable { return r.add("limit %d", n) }

func (r *recorder) Offset(n int) Queryable { return r.add("offset %d", n) }

func (r *recorder) With(path string, chain []registry.RelationDescriptor) Queryable {
	return r.add("with %s (%d hops)", path, len(chain))
}

func (r *recorder) WithCount(rel registry.RelationDescriptor) Queryable {
	return r.add("count %s", rel.Name)
}

func (r *recorder) Get(context.Context) ([]Row, error) { return r.rows, nil }

func (r *recorder) First(context.Context) (Row, error) {
	if len(r.rows) == 0 {
		return nil, nil
	}

	return r.rows[0], nil
}

func (r *recorder) Count(context.Context) (int64, error) { return r.total, nil }

func (r *recorder) Paginate(_ context.Context, perPage, page int) ([]Row, int64, error) {
	start := min((page-1)*perPage, len(r.rows))
	end := min(start+perPage, len(r.rows))

	return r.rows[start:end], r.total, nil
}

func ops(q Queryable) []string {
	return q.(*recorder).ops
}
