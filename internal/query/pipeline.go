package query

import (
	"context"
	"slices"
	"strings"

	apperrors "github.com/kyleking/lyre/internal/errors"
	"github.com/kyleking/lyre/internal/logging"
	"github.com/kyleking/lyre/internal/registry"
	"github.com/kyleking/lyre/internal/schema"
)

// Scope is a named, parameterized constraint an entity exposes through FilterSet.Perform
type Scope func(q Queryable, args ...any) (Queryable, error)

// Scopes maps entity name to scope name to scope
type Scopes map[string]map[string]Scope

// Pipeline applies a FilterSet to a base Queryable in a fixed stage order
type Pipeline struct {
	resolver     *registry.Resolver
	introspector schema.Introspector
	scopes       Scopes
	logger       *logging.Logger
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithScopes registers the named scopes available to Perform
func WithScopes(scopes Scopes) PipelineOption {
	return func(p *Pipeline) { p.scopes = scopes }
}

// WithLogger sets the logger stages report to
func WithLogger(logger *logging.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

// NewPipeline creates a pipeline
func NewPipeline(resolver *registry.Resolver, introspector schema.Introspector, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{resolver: resolver, introspector: introspector}
	for _, opt := range opts {
		opt(p)
	}

	p.logger = p.logger.Component("pipeline")

	return p
}

// Resolver returns the relation resolver the pipeline uses
func (p *Pipeline) Resolver() *registry.Resolver {
	return p.resolver
}

type stage struct {
	name  string
	apply func(*run, Queryable) (Queryable, error)
}

// Stages 3 to 13. Base acquisition and request preparation run first in Apply.
var stages = []stage{
	{"includes", (*run).includes},
	{"column_filters", (*run).columnFilters},
	{"range_filters", (*run).rangeFilters},
	{"relation_filters", (*run).relationFilters},
	{"callbacks", (*run).callbacks},
	{"operations", (*run).operations},
	{"search", (*run).search},
	{"ordering", (*run).ordering},
	{"modifiers", (*run).modifiers},
	{"offset", (*run).offset},
	{"random", (*run).random},
}

type run struct {
	ctx    context.Context
	p      *Pipeline
	entity *registry.Entity
	fs     FilterSet
	log    *logging.Logger
}

// Apply transforms base, the unfiltered query for entity, according to fs.
// It fails before touching base when fs names an operation the entity does
// not declare; query errors surface when the result is materialized.
func (p *Pipeline) Apply(ctx context.Context, entity string, base Queryable, fs FilterSet) (Queryable, error) {
	e, err := p.resolver.Registry().Lookup(entity)
	if err != nil {
		return nil, err
	}

	for _, op := range fs.operations {
		if _, ok := p.scopes[e.Name][op.Name]; !ok {
			return nil, apperrors.Newf(apperrors.ErrTypeValidation, "%s declares no operation %q", e.Name, op.Name)
		}
	}

	r := &run{ctx: ctx, p: p, entity: e, fs: fs, log: p.logger.WithField("entity", e.Name)}

	q, err := r.prepare(base)
	if err != nil {
		return nil, err
	}

	if !fs.HasCriteria() {
		r.log.Debug("no criteria, returning scoped query")
		return q, nil
	}

	for _, st := range stages {
		if q, err = st.apply(r, q); err != nil {
			return nil, err
		}

		r.log.WithField("stage", st.name).Debug("stage applied")
	}

	return q, nil
}

// prepare applies the active scope, the default newest-first ordering and
// the entity's default includes
func (r *run) prepare(q Queryable) (Queryable, error) {
	e := r.entity

	if e.HasActiveScope() && !r.fs.withInactive {
		q = q.Where(e.StatusColumn, OpEq, e.ActiveValue)
	}

	if r.fs.orderColumn == "" && !r.fs.random && !r.fs.noOrder && e.CreatedColumn != "" {
		ok, err := r.has(e.Table, e.CreatedColumn)
		if err != nil {
			return nil, err
		}

		if ok {
			q = q.OrderBy(e.CreatedColumn, Desc)
		}
	}

	q, err := r.eagerLoad(q, r.entity.Includes)
	if err != nil {
		return nil, err
	}

	r.log.WithField("stage", "prepare").Debug("stage applied")

	return q, nil
}

// includes loads the requested relations the entity does not already load by default
func (r *run) includes(q Queryable) (Queryable, error) {
	var paths []string

	for _, path := range r.fs.includes {
		if !slices.Contains(r.entity.Includes, path) && !slices.Contains(paths, path) {
			paths = append(paths, path)
		}
	}

	return r.eagerLoad(q, paths)
}

func (r *run) eagerLoad(q Queryable, paths []string) (Queryable, error) {
	for _, path := range paths {
		if !r.p.resolver.IsDeclared(r.entity.Name, path) && r.p.resolver.Lenient() {
			r.log.Debugf("include %q is not a declared relationship, skipped", path)
			continue
		}

		chain, err := r.resolve(path, "include")
		if err != nil {
			return nil, err
		}

		if chain != nil {
			q = q.With(path, chain)
		}
	}

	return q, nil
}

func (r *run) columnFilters(q Queryable) (Queryable, error) {
	for _, column := range sortedKeys(r.fs.columnFilters) {
		f := r.fs.columnFilters[column]

		typ, ok, err := r.typeOf(r.entity.Table, column)
		if err != nil {
			return nil, err
		}

		if !ok {
			r.log.Debugf("filter on unknown column %q skipped", column)
			continue
		}

		q = matchFilter(q, column, typ, f.Value, f.Values, f.IsSet())
	}

	return q, nil
}

func (r *run) rangeFilters(q Queryable) (Queryable, error) {
	for _, column := range sortedKeys(r.fs.rangeFilters) {
		f := r.fs.rangeFilters[column]

		typ, ok, err := r.typeOf(r.entity.Table, column)
		if err != nil {
			return nil, err
		}

		if !ok {
			r.log.Debugf("range on unknown column %q skipped", column)
			continue
		}

		q = q.WhereBetween(column, schema.Coerce(typ, f.Low), schema.Coerce(typ, f.High))
	}

	return q, nil
}

func (r *run) relationFilters(q Queryable) (Queryable, error) {
	for _, path := range sortedKeys(r.fs.relationFilters) {
		f := r.fs.relationFilters[path]

		chain, err := r.resolve(path, "relation filter")
		if err != nil {
			return nil, err
		}

		if chain == nil {
			continue
		}

		related := chain[len(chain)-1].RelatedTable
		column := f.Column
		if i := strings.LastIndexByte(column, '.'); i >= 0 {
			column = column[i+1:]
		}

		typ, ok, err := r.typeOf(related, column)
		if err != nil {
			return nil, err
		}

		if !ok {
			r.log.Debugf("relation filter on unknown column %s.%s skipped", related, column)
			continue
		}

		inner := func(sub Queryable) Queryable {
			return matchFilter(sub, column, typ, f.Value, f.Values, f.IsSet())
		}

		q = q.WhereHas(chain[0], nest(chain, inner))
	}

	return q, nil
}

func (r *run) callbacks(q Queryable) (Queryable, error) {
	for _, cb := range r.fs.callbacks {
		if cb != nil {
			q = cb(q)
		}
	}

	return q, nil
}

func (r *run) operations(q Queryable) (Queryable, error) {
	var err error

	for _, op := range r.fs.operations {
		scope := r.p.scopes[r.entity.Name][op.Name]
		if q, err = scope(q, op.Args...); err != nil {
			return nil, err
		}
	}

	return q, nil
}

type relationSearch struct {
	chain   []registry.RelationDescriptor
	columns []string
}

func (r *run) search(q Queryable) (Queryable, error) {
	s := r.fs.search
	if s == nil || s.Term == "" {
		return q, nil
	}

	columns, err := r.searchableColumns()
	if err != nil {
		return nil, err
	}

	var related []relationSearch

	for _, rel := range sortedKeys(s.Relations) {
		chain, err := r.resolve(rel, "search relation")
		if err != nil {
			return nil, err
		}

		if chain == nil {
			continue
		}

		table := chain[len(chain)-1].RelatedTable

		var present []string

		for _, column := range s.Relations[rel] {
			ok, err := r.has(table, column)
			if err != nil {
				return nil, err
			}

			if ok {
				present = append(present, column)
			}
		}

		if len(present) > 0 {
			related = append(related, relationSearch{chain: chain, columns: present})
		}
	}

	if len(columns) == 0 && len(related) == 0 {
		return q, nil
	}

	pattern := "%" + s.Term + "%"
	matchAny := func(cols []string) Constraint {
		return func(g Queryable) Queryable {
			for _, column := range cols {
				g = g.OrWhere(column, OpILike, pattern)
			}

			return g
		}
	}

	return q.WhereGroup(func(g Queryable) Queryable {
		g = matchAny(columns)(g)

		for _, rs := range related {
			cols := rs.columns
			g = g.OrWhereHas(rs.chain[0], nest(rs.chain, func(sub Queryable) Queryable {
				return sub.WhereGroup(matchAny(cols))
			}))
		}

		return g
	}), nil
}

// searchableColumns is the entity's serializable set limited to physical columns
func (r *run) searchableColumns() ([]string, error) {
	described, err := schema.Describe(r.ctx, r.p.introspector, r.entity.Schema())
	if err != nil {
		return nil, err
	}

	if len(r.entity.Serializable) == 0 {
		return described.Serializable(), nil
	}

	var columns []string

	for _, column := range described.Names() {
		if slices.Contains(r.entity.Serializable, column) {
			columns = append(columns, column)
		}
	}

	return columns, nil
}

func (r *run) ordering(q Queryable) (Queryable, error) {
	fs := r.fs
	if fs.random || fs.noOrder || fs.orderColumn == "" {
		return q, nil
	}

	dir := fs.orderDirection
	if dir != Asc {
		dir = Desc
	}

	i := strings.LastIndexByte(fs.orderColumn, '.')
	if i < 0 {
		ok, err := r.has(r.entity.Table, fs.orderColumn)
		if err != nil {
			return nil, err
		}

		if !ok {
			r.log.Debugf("order on unknown column %q skipped", fs.orderColumn)
			return q, nil
		}

		return q.OrderBy(fs.orderColumn, dir), nil
	}

	path, column := fs.orderColumn[:i], fs.orderColumn[i+1:]

	chain, err := r.resolve(path, "order")
	if err != nil {
		return nil, err
	}

	if chain == nil {
		return q, nil
	}

	for _, d := range chain {
		if d.Cardinality != registry.One {
			r.log.Debugf("order through to-many relation %q skipped", path)
			return q, nil
		}
	}

	ok, err := r.has(chain[len(chain)-1].RelatedTable, column)
	if err != nil {
		return nil, err
	}

	if !ok {
		r.log.Debugf("order on unknown column %q skipped", fs.orderColumn)
		return q, nil
	}

	segments := strings.Split(path, ".")
	parent := r.entity.Table

	for n, d := range chain {
		alias := strings.Join(segments[:n+1], "__")
		q = q.Join(d.RelatedTable, alias, parent+"."+d.LocalColumn(), alias+"."+d.RemoteColumn())
		parent = alias
	}

	return q.OrderBy(parent+"."+column, dir), nil
}

// modifiers applies startsWith, withCount, whereNull and doesntHave in that order
func (r *run) modifiers(q Queryable) (Queryable, error) {
	e, fs := r.entity, r.fs

	if fs.startsWith != nil && e.NameColumn != "" {
		ok, err := r.has(e.Table, e.NameColumn)
		if err != nil {
			return nil, err
		}

		if ok {
			q = q.Where(e.NameColumn, OpILike, *fs.startsWith+"%")
		}
	}

	for _, rel := range fs.withCount {
		chain, err := r.resolve(rel, "count")
		if err != nil {
			return nil, err
		}

		if len(chain) == 1 {
			q = q.WithCount(chain[0])
		} else if chain != nil {
			r.log.Debugf("count over nested relation %q skipped", rel)
		}
	}

	var nullable []string

	for _, column := range fs.whereNull {
		ok, err := r.has(e.Table, column)
		if err != nil {
			return nil, err
		}

		if ok {
			nullable = append(nullable, column)
		}
	}

	if len(nullable) > 0 {
		q = q.WhereGroup(func(g Queryable) Queryable {
			for _, column := range nullable {
				g = g.OrWhereNull(column)
			}

			return g
		})
	}

	for _, rel := range fs.doesntHave {
		chain, err := r.resolve(rel, "doesnthave")
		if err != nil {
			return nil, err
		}

		if chain != nil {
			q = q.WhereDoesntHave(chain[0], nest(chain, nil))
		}
	}

	return q, nil
}

func (r *run) offset(q Queryable) (Queryable, error) {
	if r.fs.offset != nil {
		q = q.Offset(*r.fs.offset)
	}

	return q, nil
}

func (r *run) random(q Queryable) (Queryable, error) {
	if r.fs.random && !r.fs.noOrder {
		q = q.Reorder().InRandomOrder()
	}

	return q, nil
}

// resolve returns nil, nil for a path skipped in lenient mode
func (r *run) resolve(path, clause string) ([]registry.RelationDescriptor, error) {
	chain, err := r.p.resolver.Resolve(r.entity.Name, path)
	if err == nil {
		return chain, nil
	}

	if r.p.resolver.Lenient() {
		r.log.Debugf("%s %q skipped: %v", clause, path, err)
		return nil, nil
	}

	return nil, err
}

func (r *run) has(table, column string) (bool, error) {
	return r.p.introspector.HasColumn(r.ctx, table, column)
}

func (r *run) typeOf(table, column string) (schema.PrimitiveType, bool, error) {
	ok, err := r.has(table, column)
	if err != nil || !ok {
		return schema.TypeUnknown, false, err
	}

	typ, err := r.p.introspector.ColumnType(r.ctx, table, column)

	return typ, err == nil, err
}

// nest builds the constraint for chain[0] so that inner applies to the last
// relation of chain, each intermediate hop becoming an EXISTS.
func nest(chain []registry.RelationDescriptor, inner Constraint) Constraint {
	fn := inner
	for i := len(chain) - 1; i >= 1; i-- {
		rel, next := chain[i], fn
		fn = func(sub Queryable) Queryable {
			return sub.WhereHas(rel, next)
		}
	}

	return fn
}

// coerceMatchable converts values to the column type and drops those that
// can never match it
func coerceMatchable(typ schema.PrimitiveType, values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if c := schema.Coerce(typ, v); schema.Matchable(typ, c) {
			out = append(out, c)
		}
	}

	return out
}

// matchFilter constrains column to value, or to values when set is true.
// Values the column type rejects become an empty set, which matches no rows.
func matchFilter(q Queryable, column string, typ schema.PrimitiveType, value any, values []any, set bool) Queryable {
	if set {
		return q.WhereIn(column, coerceMatchable(typ, values))
	}

	v := schema.Coerce(typ, value)
	if !schema.Matchable(typ, v) {
		return q.WhereIn(column, nil)
	}

	return q.Where(column, OpEq, v)
}
