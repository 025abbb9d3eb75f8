package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/lyre/internal/query"
	"github.com/kyleking/lyre/internal/registry"
)

var ownerRel = registry.RelationDescriptor{
	Name:             "owner",
	Kind:             registry.BelongsTo,
	Cardinality:      registry.One,
	ForeignKeyColumn: "owner_id",
	RelatedKeyColumn: "id",
	LocalTable:       "documents",
	RelatedTable:     "users",
}

var documentsRel = registry.RelationDescriptor{
	Name:             "documents",
	Kind:             registry.HasMany,
	Cardinality:      registry.Many,
	ForeignKeyColumn: "owner_id",
	RelatedKeyColumn: "id",
	LocalTable:       "users",
	RelatedTable:     "documents",
}

func render(t *testing.T, q query.Queryable) (string, []any) {
	t.Helper()

	sq, ok := q.(*sqlQuery)
	require.True(t, ok)

	sql, args, err := sq.SQL()
	require.NoError(t, err)

	return sql, args
}

func TestBuilderRendering(t *testing.T) {
	tests := []struct {
		name string
		q    query.Queryable
		sql  string
		args []any
	}{
		{
			name: "bare select",
			q:    newSQLQuery(nil, "users"),
			sql:  `SELECT "users".* FROM "users"`,
		},
		{
			name: "comparisons and or",
			q: newSQLQuery(nil, "invoices").
				Where("status", query.OpNe, "paid").
				OrWhere("invoices.amount", query.OpGte, 10.0),
			sql:  `SELECT "invoices".* FROM "invoices" WHERE "invoices"."status" <> ? OR "invoices"."amount" >= ?`,
			args: []any{"paid", 10.0},
		},
		{
			name: "like casts to varchar",
			q:    newSQLQuery(nil, "users").Where("id", query.OpILike, "%4%"),
			sql:  `SELECT "users".* FROM "users" WHERE CAST("users"."id" AS VARCHAR) ILIKE ?`,
			args: []any{"%4%"},
		},
		{
			name: "nil equality",
			q:    newSQLQuery(nil, "users").Where("email", query.OpEq, nil),
			sql:  `SELECT "users".* FROM "users" WHERE "users"."email" IS NULL`,
		},
		{
			name: "empty in matches nothing",
			q:    newSQLQuery(nil, "users").WhereIn("id", nil),
			sql:  `SELECT "users".* FROM "users" WHERE 1 = 0`,
		},
		{
			name: "in and between",
			q: newSQLQuery(nil, "invoices").
				WhereIn("status", []any{"sent", "draft"}).
				WhereBetween("amount", 1.0, 2.0),
			sql:  `SELECT "invoices".* FROM "invoices" WHERE "invoices"."status" IN (?, ?) AND "invoices"."amount" BETWEEN ? AND ?`,
			args: []any{"sent", "draft", 1.0, 2.0},
		},
		{
			name: "group",
			q: newSQLQuery(nil, "users").
				Where("status", query.OpEq, 1).
				WhereGroup(func(g query.Queryable) query.Queryable {
					return g.Where("name", query.OpILike, "%a%").OrWhere("email", query.OpILike, "%a%")
				}),
			sql: `SELECT "users".* FROM "users" WHERE "users"."status" = ? AND ` +
				`(CAST("users"."name" AS VARCHAR) ILIKE ? OR CAST("users"."email" AS VARCHAR) ILIKE ?)`,
			args: []any{1, "%a%", "%a%"},
		},
		{
			name: "exists on belongs to",
			q: newSQLQuery(nil, "documents").WhereHas(ownerRel, func(s query.Queryable) query.Queryable {
				return s.Where("users.name", query.OpEq, "Ada")
			}),
			sql: `SELECT "documents".* FROM "documents" WHERE EXISTS (SELECT 1 FROM "users" AS "r1" ` +
				`WHERE "r1"."id" = "documents"."owner_id" AND "r1"."name" = ?)`,
			args: []any{"Ada"},
		},
		{
			name: "not exists on has many",
			q:    newSQLQuery(nil, "users").WhereDoesntHave(documentsRel, nil),
			sql: `SELECT "users".* FROM "users" WHERE NOT EXISTS (SELECT 1 FROM "documents" AS "r1" ` +
				`WHERE "r1"."owner_id" = "users"."id")`,
		},
		{
			name: "join and order",
			q: newSQLQuery(nil, "documents").
				Join("users", "owner", "documents.owner_id", "owner.id").
				OrderBy("owner.name", query.Asc).
				OrderBy("id", query.Desc),
			sql: `SELECT "documents".* FROM "documents" LEFT JOIN "users" AS "owner" ON "documents"."owner_id" = "owner"."id" ` +
				`ORDER BY "owner"."name" ASC, "documents"."id" DESC`,
		},
		{
			name: "random beats order",
			q:    newSQLQuery(nil, "users").OrderBy("id", query.Asc).InRandomOrder(),
			sql:  `SELECT "users".* FROM "users" ORDER BY random()`,
		},
		{
			name: "reorder drops ordering",
			q:    newSQLQuery(nil, "users").OrderBy("id", query.Asc).Reorder(),
			sql:  `SELECT "users".* FROM "users"`,
		},
		{
			name: "limit and offset",
			q:    newSQLQuery(nil, "users").Limit(5).Offset(-3),
			sql:  `SELECT "users".* FROM "users" LIMIT 5 OFFSET 0`,
		},
		{
			name: "with count",
			q:    newSQLQuery(nil, "users").WithCount(documentsRel),
			sql: `SELECT "users".*, (SELECT COUNT(*) FROM "documents" AS "c1" WHERE "c1"."owner_id" = "users"."id") ` +
				`AS "documents_count" FROM "users"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := render(t, tt.q)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestBuilderIsImmutable(t *testing.T) {
	base := newSQLQuery(nil, "users")
	filtered := base.Where("status", query.OpEq, 1)

	sql, _ := render(t, base)
	assert.Equal(t, `SELECT "users".* FROM "users"`, sql)

	sql, _ = render(t, filtered)
	assert.Contains(t, sql, "WHERE")
}

func TestNestedExistsUsesDistinctAliases(t *testing.T) {
	q := newSQLQuery(nil, "users").WhereHas(documentsRel, func(s query.Queryable) query.Queryable {
		return s.WhereHas(ownerRel, func(o query.Queryable) query.Queryable {
			return o.Where("name", query.OpEq, "Ada")
		})
	})

	sql, args := render(t, q)
	assert.Equal(t, `SELECT "users".* FROM "users" WHERE EXISTS (SELECT 1 FROM "documents" AS "r1" `+
		`WHERE "r1"."owner_id" = "users"."id" AND EXISTS (SELECT 1 FROM "users" AS "r2" `+
		`WHERE "r2"."id" = "r1"."owner_id" AND "r2"."name" = ?))`, sql)
	assert.Equal(t, []any{"Ada"}, args)
}

func TestBuilderErrors(t *testing.T) {
	tests := []struct {
		name string
		q    query.Queryable
	}{
		{"bad table", newSQLQuery(nil, "users; drop")},
		{"bad column", newSQLQuery(nil, "users").Where("name) or (1", query.OpEq, 1)},
		{"bad operator", newSQLQuery(nil, "users").Where("name", "~", 1)},
		{"nil ordering comparison", newSQLQuery(nil, "users").Where("id", query.OpGt, nil)},
		{"bad join", newSQLQuery(nil, "users").Join("x y", "a", "id", "a.id")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.q.(*sqlQuery).SQL()
			assert.Error(t, err)
		})
	}
}

func TestErrorSurvivesLaterCalls(t *testing.T) {
	q := newSQLQuery(nil, "users").Where("id", "~", 1).Where("name", query.OpEq, "x").Limit(1)

	_, _, err := q.(*sqlQuery).SQL()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported operator")
}
