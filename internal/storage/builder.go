package storage

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/kyleking/lyre/internal/query"
	"github.com/kyleking/lyre/internal/registry"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var operators = map[string]string{
	query.OpEq:    "=",
	query.OpNe:    "<>",
	"<>":          "<>",
	query.OpLt:    "<",
	query.OpLte:   "<=",
	query.OpGt:    ">",
	query.OpGte:   ">=",
	query.OpLike:  "LIKE",
	query.OpILike: "ILIKE",
}

type clause struct {
	or   bool
	sql  string
	args []any
}

type include struct {
	path  string
	chain []registry.RelationDescriptor
}

// sqlQuery is the SQL implementation of query.Queryable. Values are
// immutable; every builder method works on a copy.
type sqlQuery struct {
	store *Store
	table string
	// alias names the table inside EXISTS subqueries; empty at the root.
	alias    string
	depth    int
	wheres   []clause
	joins    []string
	orders   []string
	random   bool
	limit    *int
	offset   *int
	includes []include
	counts   []registry.RelationDescriptor
	err      error
}

var _ query.Queryable = (*sqlQuery)(nil)

func newSQLQuery(s *Store, table string) *sqlQuery {
	q := &sqlQuery{store: s, table: table}
	if !identPattern.MatchString(table) {
		q.err = fmt.Errorf("invalid table name %q", table)
	}

	return q
}

func (q *sqlQuery) clone() *sqlQuery {
	c := *q
	c.wheres = slices.Clone(q.wheres)
	c.joins = slices.Clone(q.joins)
	c.orders = slices.Clone(q.orders)
	c.includes = slices.Clone(q.includes)
	c.counts = slices.Clone(q.counts)

	return &c
}

func (q *sqlQuery) fail(err error) *sqlQuery {
	c := q.clone()
	if c.err == nil {
		c.err = err
	}

	return c
}

// scope returns an empty query over the same table and alias, for groups
func (q *sqlQuery) scope() *sqlQuery {
	return &sqlQuery{store: q.store, table: q.table, alias: q.alias, depth: q.depth}
}

func (q *sqlQuery) name() string {
	if q.alias != "" {
		return q.alias
	}

	return q.table
}

func quote(ident string) string {
	return `"` + ident + `"`
}

// ref renders column as a quoted, qualified reference. Bare names and names
// qualified by this query's table resolve to this query's alias.
func (q *sqlQuery) ref(column string) (string, error) {
	owner, name := q.name(), column
	if i := strings.LastIndexByte(column, '.'); i >= 0 {
		owner, name = column[:i], column[i+1:]
		if owner == q.table {
			owner = q.name()
		}
	}

	if !identPattern.MatchString(owner) || !identPattern.MatchString(name) {
		return "", fmt.Errorf("invalid column reference %q", column)
	}

	return quote(owner) + "." + quote(name), nil
}

func (q *sqlQuery) addWhere(or bool, sql string, args ...any) *sqlQuery {
	c := q.clone()
	c.wheres = append(c.wheres, clause{or: or, sql: sql, args: args})

	return c
}

func (q *sqlQuery) Table() string {
	return q.table
}

func (q *sqlQuery) compare(or bool, column, op string, value any) query.Queryable {
	sqlOp, ok := operators[strings.ToLower(op)]
	if !ok {
		return q.fail(fmt.Errorf("unsupported operator %q", op))
	}

	ref, err := q.ref(column)
	if err != nil {
		return q.fail(err)
	}

	switch {
	case sqlOp == "LIKE" || sqlOp == "ILIKE":
		return q.addWhere(or, fmt.Sprintf("CAST(%s AS VARCHAR) %s ?", ref, sqlOp), value)
	case value == nil && sqlOp == "=":
		return q.addWhere(or, ref+" IS NULL")
	case value == nil && sqlOp == "<>":
		return q.addWhere(or, ref+" IS NOT NULL")
	case value == nil:
		return q.fail(fmt.Errorf("cannot compare %s %s NULL", column, op))
	default:
		return q.addWhere(or, fmt.Sprintf("%s %s ?", ref, sqlOp), value)
	}
}

func (q *sqlQuery) Where(column, op string, value any) query.Queryable {
	return q.compare(false, column, op, value)
}

func (q *sqlQuery) OrWhere(column, op string, value any) query.Queryable {
	return q.compare(true, column, op, value)
}

func (q *sqlQuery) WhereIn(column string, values []any) query.Queryable {
	ref, err := q.ref(column)
	if err != nil {
		return q.fail(err)
	}

	if len(values) == 0 {
		return q.addWhere(false, "1 = 0")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")

	return q.addWhere(false, fmt.Sprintf("%s IN (%s)", ref, placeholders), values...)
}

func (q *sqlQuery) WhereBetween(column string, low, high any) query.Queryable {
	ref, err := q.ref(column)
	if err != nil {
		return q.fail(err)
	}

	return q.addWhere(false, ref+" BETWEEN ? AND ?", low, high)
}

func (q *sqlQuery) whereNull(or bool, column string) query.Queryable {
	ref, err := q.ref(column)
	if err != nil {
		return q.fail(err)
	}

	return q.addWhere(or, ref+" IS NULL")
}

func (q *sqlQuery) WhereNull(column string) query.Queryable {
	return q.whereNull(false, column)
}

func (q *sqlQuery) OrWhereNull(column string) query.Queryable {
	return q.whereNull(true, column)
}

// constrain runs fn against base and unwraps the result
func constrain(base *sqlQuery, fn query.Constraint) (*sqlQuery, error) {
	if fn == nil {
		return base, base.err
	}

	out, ok := fn(base).(*sqlQuery)
	if !ok {
		return nil, fmt.Errorf("constraint returned a foreign queryable")
	}

	return out, out.err
}

func (q *sqlQuery) WhereGroup(fn query.Constraint) query.Queryable {
	group, err := constrain(q.scope(), fn)
	if err != nil {
		return q.fail(err)
	}

	if len(group.wheres) == 0 {
		return q
	}

	sql, args := renderWheres(group.wheres)

	return q.addWhere(false, "("+sql+")", args...)
}

func (q *sqlQuery) exists(or, negate bool, rel registry.RelationDescriptor, fn query.Constraint) query.Queryable {
	local, err := q.ref(rel.LocalColumn())
	if err != nil {
		return q.fail(err)
	}

	sub := newSQLQuery(q.store, rel.RelatedTable)
	sub.alias = fmt.Sprintf("r%d", q.depth+1)
	sub.depth = q.depth + 1

	remote, err := sub.ref(rel.RemoteColumn())
	if err != nil {
		return q.fail(err)
	}

	sub.wheres = []clause{{sql: remote + " = " + local}}

	if sub, err = constrain(sub, fn); err != nil {
		return q.fail(err)
	}

	where, args := renderWheres(sub.wheres)
	sql := fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS %s WHERE %s)", quote(sub.table), quote(sub.alias), where)

	if negate {
		sql = "NOT " + sql
	}

	return q.addWhere(or, sql, args...)
}

func (q *sqlQuery) WhereHas(rel registry.RelationDescriptor, fn query.Constraint) query.Queryable {
	return q.exists(false, false, rel, fn)
}

func (q *sqlQuery) OrWhereHas(rel registry.RelationDescriptor, fn query.Constraint) query.Queryable {
	return q.exists(true, false, rel, fn)
}

func (q *sqlQuery) WhereDoesntHave(rel registry.RelationDescriptor, fn query.Constraint) query.Queryable {
	return q.exists(false, true, rel, fn)
}

func (q *sqlQuery) Join(table, alias, leftColumn, rightColumn string) query.Queryable {
	if !identPattern.MatchString(table) || !identPattern.MatchString(alias) {
		return q.fail(fmt.Errorf("invalid join %s AS %s", table, alias))
	}

	left, err := q.ref(leftColumn)
	if err != nil {
		return q.fail(err)
	}

	right, err := q.ref(rightColumn)
	if err != nil {
		return q.fail(err)
	}

	join := fmt.Sprintf("LEFT JOIN %s AS %s ON %s = %s", quote(table), quote(alias), left, right)
	if slices.Contains(q.joins, join) {
		return q
	}

	c := q.clone()
	c.joins = append(c.joins, join)

	return c
}

func (q *sqlQuery) OrderBy(column string, dir query.Direction) query.Queryable {
	ref, err := q.ref(column)
	if err != nil {
		return q.fail(err)
	}

	direction := "DESC"
	if dir == query.Asc {
		direction = "ASC"
	}

	c := q.clone()
	c.orders = append(c.orders, ref+" "+direction)

	return c
}

func (q *sqlQuery) InRandomOrder() query.Queryable {
	c := q.clone()
	c.random = true

	return c
}

func (q *sqlQuery) Reorder() query.Queryable {
	c := q.clone()
	c.orders = nil
	c.random = false

	return c
}

func (q *sqlQuery) Limit(n int) query.Queryable {
	c := q.clone()
	n = max(n, 0)
	c.limit = &n

	return c
}

func (q *sqlQuery) Offset(n int) query.Queryable {
	c := q.clone()
	n = max(n, 0)
	c.offset = &n

	return c
}

func (q *sqlQuery) With(path string, chain []registry.RelationDescriptor) query.Queryable {
	if len(chain) == 0 {
		return q
	}

	c := q.clone()
	c.includes = append(c.includes, include{path: path, chain: slices.Clone(chain)})

	return c
}

func (q *sqlQuery) WithCount(rel registry.RelationDescriptor) query.Queryable {
	for _, ident := range []string{rel.RelatedTable, rel.LocalColumn(), rel.RemoteColumn(), rel.Name} {
		if !identPattern.MatchString(ident) {
			return q.fail(fmt.Errorf("invalid count relation %q", rel.Name))
		}
	}

	c := q.clone()
	c.counts = append(c.counts, rel)

	return c
}

func renderWheres(clauses []clause) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)

	for i, c := range clauses {
		if i > 0 {
			if c.or {
				sb.WriteString(" OR ")
			} else {
				sb.WriteString(" AND ")
			}
		}

		sb.WriteString(c.sql)
		args = append(args, c.args...)
	}

	return sb.String(), args
}

// build renders the SELECT. Counting queries skip count columns, ordering and paging.
func (q *sqlQuery) build(counting bool) (string, []any) {
	var sb strings.Builder

	name := quote(q.name())
	sb.WriteString("SELECT " + name + ".*")

	if !counting {
		for i, rel := range q.counts {
			alias := quote(fmt.Sprintf("c%d", i+1))
			fmt.Fprintf(&sb, ", (SELECT COUNT(*) FROM %s AS %s WHERE %s.%s = %s.%s) AS %s",
				quote(rel.RelatedTable), alias, alias, quote(rel.RemoteColumn()),
				name, quote(rel.LocalColumn()), quote(query.CountColumn(rel.Name)))
		}
	}

	sb.WriteString(" FROM " + quote(q.table))

	if q.alias != "" {
		sb.WriteString(" AS " + name)
	}

	for _, join := range q.joins {
		sb.WriteString(" " + join)
	}

	where, args := renderWheres(q.wheres)
	if where != "" {
		sb.WriteString(" WHERE " + where)
	}

	if counting {
		return sb.String(), args
	}

	switch {
	case q.random:
		sb.WriteString(" ORDER BY random()")
	case len(q.orders) > 0:
		sb.WriteString(" ORDER BY " + strings.Join(q.orders, ", "))
	}

	if q.limit != nil {
		fmt.Fprintf(&sb, " LIMIT %d", *q.limit)
	}

	if q.offset != nil {
		fmt.Fprintf(&sb, " OFFSET %d", *q.offset)
	}

	return sb.String(), args
}

// SQL renders the statement Get would run
func (q *sqlQuery) SQL() (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}

	sql, args := q.build(false)

	return sql, args, nil
}

func (q *sqlQuery) Get(ctx context.Context) ([]query.Row, error) {
	sql, args, err := q.SQL()
	if err != nil {
		return nil, err
	}

	rows, err := q.store.selectRows(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.table, err)
	}

	if len(q.includes) > 0 && len(rows) > 0 {
		if err := q.store.eagerLoad(ctx, rows, buildIncludeTree(q.includes)); err != nil {
			return nil, err
		}
	}

	return rows, nil
}

func (q *sqlQuery) First(ctx context.Context) (query.Row, error) {
	rows, err := q.Limit(1).Get(ctx)
	if err != nil || len(rows) == 0 {
		return nil, err
	}

	return rows[0], nil
}

func (q *sqlQuery) Count(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}

	inner, args := q.build(true)
	sql := "SELECT COUNT(*) FROM (" + inner + ") AS counted"

	ctx, cancel := q.store.withTimeout(ctx)
	defer cancel()

	q.store.logger.WithField("sql", sql).Debug("counting rows")

	var total int64
	if err := q.store.db.QueryRowxContext(ctx, sql, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", q.table, err)
	}

	return total, nil
}

// Paginate counts first, then fetches the page; any offset set earlier is replaced
func (q *sqlQuery) Paginate(ctx context.Context, perPage, page int) ([]query.Row, int64, error) {
	perPage = max(perPage, 1)
	page = max(page, 1)

	total, err := q.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	rows, err := q.Limit(perPage).Offset((page - 1) * perPage).Get(ctx)
	if err != nil {
		return nil, 0, err
	}

	return rows, total, nil
}
