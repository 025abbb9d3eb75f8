package query

import (
	"maps"
	"slices"
	"sort"
)

// DefaultPerPage is the page size used when none is configured
const DefaultPerPage = 9

// ColumnFilter is an equality test, or a set-membership test when Values is non-nil
type ColumnFilter struct {
	Value  any
	Values []any
}

// IsSet reports whether the filter tests set membership
func (f ColumnFilter) IsSet() bool {
	return f.Values != nil
}

// RangeFilter is an inclusive between-test
type RangeFilter struct {
	Low  any
	High any
}

// RelationFilter is an existence test on the related row at the end of Path
type RelationFilter struct {
	Path   string
	Column string
	Value  any
	Values []any
}

// IsSet reports whether the filter tests set membership
func (f RelationFilter) IsSet() bool {
	return f.Values != nil
}

// Search is a free-text term plus the related columns it also searches
type Search struct {
	Term      string
	Relations map[string][]string
}

// Operation is a named scope queued with its arguments
type Operation struct {
	Name string
	Args []any
}

// FilterSet is the complete filtering, ordering and paging intent of one
// query. It is a value: setters return a modified copy and never touch the
// receiver, so a FilterSet can be shared and reused freely. The zero value
// is paginated with DefaultPerPage rows per page, newest first.
type FilterSet struct {
	columnFilters   map[string]ColumnFilter
	rangeFilters    map[string]RangeFilter
	relationFilters map[string]RelationFilter
	search          *Search
	includes        []string

	orderColumn    string
	orderDirection Direction

	limit       *int
	offset      *int
	unpaginated bool
	perPage     int
	page        int

	random       bool
	noOrder      bool
	first        bool
	withInactive bool

	withCount  []string
	whereNull  []string
	doesntHave []string
	startsWith *string

	callbacks  []Constraint
	operations []Operation
}

// NewFilterSet returns an empty FilterSet paginated by perPage
func NewFilterSet(perPage int) FilterSet {
	return FilterSet{}.PerPage(perPage)
}

func (fs FilterSet) clone() FilterSet {
	fs.columnFilters = maps.Clone(fs.columnFilters)
	fs.rangeFilters = maps.Clone(fs.rangeFilters)
	fs.relationFilters = maps.Clone(fs.relationFilters)
	fs.includes = slices.Clone(fs.includes)
	fs.withCount = slices.Clone(fs.withCount)
	fs.whereNull = slices.Clone(fs.whereNull)
	fs.doesntHave = slices.Clone(fs.doesntHave)
	fs.callbacks = slices.Clone(fs.callbacks)
	fs.operations = slices.Clone(fs.operations)

	if fs.search != nil {
		s := Search{Term: fs.search.Term, Relations: make(map[string][]string, len(fs.search.Relations))}
		for rel, cols := range fs.search.Relations {
			s.Relations[rel] = slices.Clone(cols)
		}

		fs.search = &s
	}

	return fs
}

// Where adds an equality filter on column, replacing any earlier filter on it
func (fs FilterSet) Where(column string, value any) FilterSet {
	fs = fs.clone()
	if fs.columnFilters == nil {
		fs.columnFilters = make(map[string]ColumnFilter)
	}

	fs.columnFilters[column] = ColumnFilter{Value: value}

	return fs
}

// WhereIn adds a set-membership filter on column
func (fs FilterSet) WhereIn(column string, values ...any) FilterSet {
	fs = fs.clone()
	if fs.columnFilters == nil {
		fs.columnFilters = make(map[string]ColumnFilter)
	}

	fs.columnFilters[column] = ColumnFilter{Values: append([]any{}, values...)}

	return fs
}

// Between adds an inclusive range filter on column
func (fs FilterSet) Between(column string, low, high any) FilterSet {
	fs = fs.clone()
	if fs.rangeFilters == nil {
		fs.rangeFilters = make(map[string]RangeFilter)
	}

	fs.rangeFilters[column] = RangeFilter{Low: low, High: high}

	return fs
}

// WhereRelation keeps rows whose related row at path has column = value
func (fs FilterSet) WhereRelation(path, column string, value any) FilterSet {
	fs = fs.clone()
	if fs.relationFilters == nil {
		fs.relationFilters = make(map[string]RelationFilter)
	}

	fs.relationFilters[path] = RelationFilter{Path: path, Column: column, Value: value}

	return fs
}

// WhereRelationIn keeps rows whose related row at path has column in values
func (fs FilterSet) WhereRelationIn(path, column string, values ...any) FilterSet {
	fs = fs.clone()
	if fs.relationFilters == nil {
		fs.relationFilters = make(map[string]RelationFilter)
	}

	fs.relationFilters[path] = RelationFilter{Path: path, Column: column, Values: append([]any{}, values...)}

	return fs
}

// Search sets the free-text term, keeping any search relations
func (fs FilterSet) Search(term string) FilterSet {
	fs = fs.clone()
	if fs.search == nil {
		fs.search = &Search{Relations: map[string][]string{}}
	}

	fs.search.Term = term

	return fs
}

// SearchRelation also matches the search term against columns of relation
func (fs FilterSet) SearchRelation(relation string, columns ...string) FilterSet {
	fs = fs.clone()
	if fs.search == nil {
		fs.search = &Search{Relations: map[string][]string{}}
	}

	fs.search.Relations[relation] = append(fs.search.Relations[relation], columns...)

	return fs
}

// With eager-loads the given relation paths
func (fs FilterSet) With(paths ...string) FilterSet {
	fs = fs.clone()
	for _, p := range paths {
		if !slices.Contains(fs.includes, p) {
			fs.includes = append(fs.includes, p)
		}
	}

	return fs
}

// OrderBy orders by column, which may be a dotted relation column
func (fs FilterSet) OrderBy(column string, dir Direction) FilterSet {
	fs = fs.clone()
	fs.orderColumn = column
	fs.orderDirection = dir

	return fs
}

// Limit caps the result at n rows and disables pagination
func (fs FilterSet) Limit(n int) FilterSet {
	fs = fs.clone()
	fs.limit = &n

	return fs
}

// Offset skips n rows
func (fs FilterSet) Offset(n int) FilterSet {
	fs = fs.clone()
	fs.offset = &n

	return fs
}

// PerPage sets the page size; non-positive sizes fall back to DefaultPerPage
func (fs FilterSet) PerPage(n int) FilterSet {
	fs = fs.clone()
	fs.perPage = n

	return fs
}

// Page selects the 1-based page to fetch
func (fs FilterSet) Page(n int) FilterSet {
	fs = fs.clone()
	fs.page = n

	return fs
}

// Unpaginated returns every matching row in one flat result
func (fs FilterSet) Unpaginated() FilterSet {
	fs = fs.clone()
	fs.unpaginated = true

	return fs
}

// Random orders rows randomly, overriding any explicit order
func (fs FilterSet) Random() FilterSet {
	fs = fs.clone()
	fs.random = true

	return fs
}

// NoOrder suppresses every ordering, random included
func (fs FilterSet) NoOrder() FilterSet {
	fs = fs.clone()
	fs.noOrder = true

	return fs
}

// First returns a single row (or none) instead of a list
func (fs FilterSet) First() FilterSet {
	fs = fs.clone()
	fs.first = true

	return fs
}

// WithInactive lifts the entity's active scope
func (fs FilterSet) WithInactive() FilterSet {
	fs = fs.clone()
	fs.withInactive = true

	return fs
}

// WithCount annotates rows with related-row counts
func (fs FilterSet) WithCount(relations ...string) FilterSet {
	fs = fs.clone()
	fs.withCount = append(fs.withCount, relations...)

	return fs
}

// WhereNull keeps rows where any of columns IS NULL
func (fs FilterSet) WhereNull(columns ...string) FilterSet {
	fs = fs.clone()
	fs.whereNull = append(fs.whereNull, columns...)

	return fs
}

// DoesntHave keeps rows with no related rows for each relation
func (fs FilterSet) DoesntHave(relations ...string) FilterSet {
	fs = fs.clone()
	fs.doesntHave = append(fs.doesntHave, relations...)

	return fs
}

// StartsWith keeps rows whose display name starts with prefix, ignoring case
func (fs FilterSet) StartsWith(prefix string) FilterSet {
	fs = fs.clone()
	fs.startsWith = &prefix

	return fs
}

// Tap queues an ad-hoc constraint, applied after relation filters in call order
func (fs FilterSet) Tap(fn Constraint) FilterSet {
	fs = fs.clone()
	fs.callbacks = append(fs.callbacks, fn)

	return fs
}

// Perform queues a named scope of the target entity
func (fs FilterSet) Perform(name string, args ...any) FilterSet {
	fs = fs.clone()
	fs.operations = append(fs.operations, Operation{Name: name, Args: args})

	return fs
}

// IsFirst reports whether a single row was requested
func (fs FilterSet) IsFirst() bool {
	return fs.first
}

// Paginated reports whether the result is paged: not first, no limit, not unpaginated
func (fs FilterSet) Paginated() bool {
	return !fs.first && fs.limit == nil && !fs.unpaginated
}

// PageSize returns the effective page size
func (fs FilterSet) PageSize() int {
	if fs.perPage <= 0 {
		return DefaultPerPage
	}

	return fs.perPage
}

// CurrentPage returns the effective 1-based page
func (fs FilterSet) CurrentPage() int {
	if fs.page < 1 {
		return 1
	}

	return fs.page
}

// Includes returns the requested eager-load paths
func (fs FilterSet) Includes() []string {
	return slices.Clone(fs.includes)
}

// Operations returns the queued named scopes
func (fs FilterSet) Operations() []Operation {
	return slices.Clone(fs.operations)
}

// HasCriteria reports whether any filtering or ordering intent is present.
// Paging and the first/inactive flags alone do not count.
func (fs FilterSet) HasCriteria() bool {
	return len(fs.columnFilters) > 0 ||
		len(fs.rangeFilters) > 0 ||
		len(fs.relationFilters) > 0 ||
		(fs.search != nil && (fs.search.Term != "" || len(fs.search.Relations) > 0)) ||
		len(fs.includes) > 0 ||
		fs.orderColumn != "" ||
		fs.random ||
		fs.noOrder ||
		fs.offset != nil ||
		len(fs.withCount) > 0 ||
		len(fs.whereNull) > 0 ||
		len(fs.doesntHave) > 0 ||
		fs.startsWith != nil ||
		len(fs.callbacks) > 0 ||
		len(fs.operations) > 0
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
