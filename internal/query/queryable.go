package query

import (
	"context"
	"strings"

	"github.com/kyleking/lyre/internal/registry"
)

// Row is one materialized record. Eager-loaded relations are nested under
// their relation name as a Row (to-one, possibly nil) or []Row (to-many).
type Row map[string]any

// Direction is an ordering direction
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection accepts asc/desc in any case; anything else is Desc
func ParseDirection(s string) Direction {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Asc:
		return Asc
	default:
		return Desc
	}
}

// Comparison operators accepted by Where/OrWhere
const (
	OpEq    = "="
	OpNe    = "!="
	OpLt    = "<"
	OpLte   = "<="
	OpGt    = ">"
	OpGte   = ">="
	OpLike  = "like"
	OpILike = "ilike"
)

// Constraint refines a subquery or a predicate group
type Constraint func(Queryable) Queryable

// Queryable is a lazily evaluated, immutable request for rows. Every builder
// method returns a new Queryable and leaves the receiver untouched. Builder
// misuse (unknown operator, bad identifier) is reported by the first
// materializing call.
//
// Column arguments are either bare ("amount"), qualified by the queryable's
// table ("invoices.amount"), or qualified by a join alias.
type Queryable interface {
	// Table is the table rows are selected from
	Table() string

	Where(column, op string, value any) Queryable
	OrWhere(column, op string, value any) Queryable
	WhereIn(column string, values []any) Queryable
	WhereBetween(column string, low, high any) Queryable
	WhereNull(column string) Queryable
	OrWhereNull(column string) Queryable
	// WhereGroup wraps the predicates added by fn in parentheses
	WhereGroup(fn Constraint) Queryable

	// WhereHas keeps rows with at least one related row matching fn (EXISTS)
	WhereHas(rel registry.RelationDescriptor, fn Constraint) Queryable
	OrWhereHas(rel registry.RelationDescriptor, fn Constraint) Queryable
	// WhereDoesntHave keeps rows with no related row matching fn (NOT EXISTS)
	WhereDoesntHave(rel registry.RelationDescriptor, fn Constraint) Queryable

	// Join left-joins table under alias on leftColumn = rightColumn
	Join(table, alias, leftColumn, rightColumn string) Queryable
	OrderBy(column string, dir Direction) Queryable
	InRandomOrder() Queryable
	// Reorder drops every ordering added so far
	Reorder() Queryable
	Limit(n int) Queryable
	Offset(n int) Queryable

	// With eager-loads the relation chain under the dotted path
	With(path string, chain []registry.RelationDescriptor) Queryable
	// WithCount adds a "<name>_count" column counting related rows
	WithCount(rel registry.RelationDescriptor) Queryable

	Get(ctx context.Context) ([]Row, error)
	First(ctx context.Context) (Row, error)
	Count(ctx context.Context) (int64, error)
	// Paginate returns page (1-based) of size perPage and the unpaged total
	Paginate(ctx context.Context, perPage, page int) ([]Row, int64, error)
}

// CountColumn is the column WithCount adds for relation name
func CountColumn(name string) string {
	return name + "_count"
}
