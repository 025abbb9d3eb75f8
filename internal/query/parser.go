package query

import (
	"context"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kyleking/lyre/internal/logging"
	"github.com/kyleking/lyre/internal/registry"
	"github.com/kyleking/lyre/internal/schema"
)

// Query-string parameter names
const (
	ParamStatus          = "status"
	ParamWith            = "with"
	ParamSearch          = "search"
	ParamSearchRelations = "search-relations"
	ParamUnpaginated     = "unpaginated"
	ParamLimit           = "limit"
	ParamOffset          = "offset"
	ParamRelation        = "relation"
	ParamRelationIn      = "relation_in"
	ParamRange           = "range"
	ParamFilter          = "filter"
	ParamOrder           = "order"
	ParamPerPage         = "per_page"
	ParamPage            = "page"
	ParamStartsWith      = "startswith"
	ParamWithCount       = "withcount"
	ParamWhereNull       = "wherenull"
	ParamDoesntHave      = "doesnthave"
	ParamRandom          = "random"
	ParamNoOrder         = "noOrder"
	ParamFirst           = "first"
)

// StatusAll lifts the active scope without filtering on status
const StatusAll = "all"

var reservedParams = map[string]bool{
	ParamStatus: true, ParamWith: true, ParamSearch: true, ParamSearchRelations: true,
	ParamUnpaginated: true, ParamLimit: true, ParamOffset: true, ParamRelation: true,
	ParamRelationIn: true, ParamRange: true, ParamFilter: true, ParamOrder: true,
	ParamPerPage: true, ParamPage: true, ParamStartsWith: true, ParamWithCount: true,
	ParamWhereNull: true, ParamDoesntHave: true, ParamRandom: true, ParamFirst: true,
	ParamNoOrder: true,
}

// Defaults are the paging settings applied when a request leaves them out
type Defaults struct {
	PerPage    int
	MaxPerPage int
}

// Parser turns query-string parameters into a FilterSet for one entity
type Parser struct {
	resolver     *registry.Resolver
	introspector schema.Introspector
	defaults     Defaults
	logger       *logging.Logger
}

// NewParser creates a parser. A nil logger discards.
func NewParser(resolver *registry.Resolver, introspector schema.Introspector, defaults Defaults, logger *logging.Logger) *Parser {
	if defaults.PerPage <= 0 {
		defaults.PerPage = DefaultPerPage
	}

	return &Parser{
		resolver:     resolver,
		introspector: introspector,
		defaults:     defaults,
		logger:       logger.Component("parser"),
	}
}

// Parse builds the FilterSet for entity from params. Unknown columns,
// non-numeric paging values and (in lenient mode) unresolvable relations
// are skipped.
func (p *Parser) Parse(ctx context.Context, entity string, params url.Values) (FilterSet, error) {
	e, err := p.resolver.Registry().Lookup(entity)
	if err != nil {
		return FilterSet{}, err
	}

	fs := NewFilterSet(p.defaults.PerPage)

	if raw, ok := lookup(params, ParamStatus); ok {
		if fs, err = p.parseStatus(fs, e, raw); err != nil {
			return FilterSet{}, err
		}
	}

	if raw, ok := lookup(params, ParamWith); ok {
		fs = fs.With(splitList(raw)...)
	}

	if raw, ok := lookup(params, ParamFilter); ok {
		fs = parseColumnFilters(fs, raw)
	}

	if raw, ok := lookup(params, ParamRange); ok {
		if fs, err = p.parseRanges(ctx, fs, e, raw); err != nil {
			return FilterSet{}, err
		}
	}

	if raw, ok := lookup(params, ParamRelation); ok {
		parts := splitList(raw)
		for i := 0; i+1 < len(parts); i += 2 {
			if fs, err = p.relationFilter(fs, e, parts[i], []string{parts[i+1]}, false); err != nil {
				return FilterSet{}, err
			}
		}
	}

	if raw, ok := lookup(params, ParamRelationIn); ok {
		if parts := splitList(raw); len(parts) > 1 {
			if fs, err = p.relationFilter(fs, e, parts[0], parts[1:], true); err != nil {
				return FilterSet{}, err
			}
		}
	}

	if term, ok := lookup(params, ParamSearch); ok && term != "" {
		fs = fs.Search(term)

		if raw, ok := lookup(params, ParamSearchRelations); ok {
			parts := splitList(raw)
			for i := 0; i+1 < len(parts); i += 2 {
				fs = fs.SearchRelation(parts[i], parts[i+1])
			}
		}
	}

	if raw, ok := lookup(params, ParamOrder); ok {
		if parts := splitList(raw); len(parts) > 0 {
			dir := Desc
			if len(parts) > 1 {
				dir = ParseDirection(parts[1])
			}

			fs = fs.OrderBy(parts[0], dir)
		}
	}

	if n, ok := numericParam(params, ParamLimit, 0); ok {
		fs = fs.Limit(n)
	}

	if n, ok := numericParam(params, ParamOffset, 0); ok {
		fs = fs.Offset(n)
	}

	if n, ok := numericParam(params, ParamPerPage, 1); ok {
		if p.defaults.MaxPerPage > 0 && n > p.defaults.MaxPerPage {
			n = p.defaults.MaxPerPage
		}

		fs = fs.PerPage(n)
	}

	if n, ok := numericParam(params, ParamPage, 1); ok {
		fs = fs.Page(n)
	}

	if flag(params, ParamUnpaginated) {
		fs = fs.Unpaginated()
	}

	if flag(params, ParamRandom) {
		fs = fs.Random()
	}

	if flag(params, ParamNoOrder) {
		fs = fs.NoOrder()
	}

	if flag(params, ParamFirst) {
		fs = fs.First()
	}

	if raw, ok := lookup(params, ParamStartsWith); ok && raw != "" {
		fs = fs.StartsWith(raw)
	}

	if raw, ok := lookup(params, ParamWithCount); ok {
		fs = fs.WithCount(splitList(raw)...)
	}

	if raw, ok := lookup(params, ParamWhereNull); ok {
		fs = fs.WhereNull(splitList(raw)...)
	}

	if raw, ok := lookup(params, ParamDoesntHave); ok {
		fs = fs.DoesntHave(splitList(raw)...)
	}

	// Any other key naming a declared relation is an implicit relation filter.
	for _, key := range sortedKeys(params) {
		if reservedParams[key] {
			continue
		}

		if _, declared := e.Relations[key]; !declared {
			continue
		}

		if fs, err = p.relationFilter(fs, e, key, []string{params.Get(key)}, false); err != nil {
			return FilterSet{}, err
		}
	}

	return fs, nil
}

func (p *Parser) parseStatus(fs FilterSet, e *registry.Entity, name string) (FilterSet, error) {
	fs = fs.WithInactive()
	if name == StatusAll || name == "" {
		return fs, nil
	}

	code, err := e.StatusCode(name)
	if err != nil {
		return FilterSet{}, err
	}

	return fs.Where(e.StatusColumn, code), nil
}

// parseColumnFilters reads key,value pairs; later keys win, a trailing key is ignored
func parseColumnFilters(fs FilterSet, raw string) FilterSet {
	parts := splitList(raw)
	for i := 0; i+1 < len(parts); i += 2 {
		fs = fs.Where(parts[i], parts[i+1])
	}

	return fs
}

func (p *Parser) parseRanges(ctx context.Context, fs FilterSet, e *registry.Entity, raw string) (FilterSet, error) {
	parts := splitList(raw)
	for i := 0; i+2 < len(parts); i += 3 {
		column, lo, hi := parts[i], parts[i+1], parts[i+2]

		ok, err := p.introspector.HasColumn(ctx, e.Table, column)
		if err != nil {
			return FilterSet{}, err
		}

		if !ok {
			p.logger.Debugf("range on unknown column %s.%s skipped", e.Table, column)
			continue
		}

		typ, err := p.introspector.ColumnType(ctx, e.Table, column)
		if err != nil {
			return FilterSet{}, err
		}

		low, high, ok := coerceRange(typ, lo, hi)
		if !ok {
			p.logger.Debugf("range on %s.%s has unparseable bounds, skipped", e.Table, column)
			continue
		}

		fs = fs.Between(column, low, high)
	}

	return fs, nil
}

// coerceRange converts bounds by column type. Malformed numbers become zero;
// unparseable dates reject the whole range.
func coerceRange(typ schema.PrimitiveType, lo, hi string) (any, any, bool) {
	switch typ {
	case schema.TypeInteger:
		return atoiOrZero(lo), atoiOrZero(hi), true
	case schema.TypeFloat:
		return floatOrZero(lo), floatOrZero(hi), true
	case schema.TypeDate, schema.TypeDateTime:
		start, ok := schema.ParseTime(lo)
		if !ok {
			return nil, nil, false
		}

		end, ok := schema.ParseTime(hi)
		if !ok {
			return nil, nil, false
		}

		return startOfDay(start), endOfDay(end), true
	default:
		return lo, hi, true
	}
}

func atoiOrZero(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		// Decimal input against an integer column truncates.
		if f, ferr := strconv.ParseFloat(strings.TrimSpace(s), 64); ferr == nil {
			return int64(f)
		}

		return 0
	}

	return n
}

func floatOrZero(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}

	return f
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// relationFilter resolves path and filters on the related entity's ID column
func (p *Parser) relationFilter(fs FilterSet, e *registry.Entity, path string, values []string, set bool) (FilterSet, error) {
	chain, err := p.resolver.Resolve(e.Name, path)
	if err != nil {
		if p.resolver.Lenient() {
			p.logger.Debugf("relation filter %q on %s skipped: %v", path, e.Name, err)
			return fs, nil
		}

		return FilterSet{}, err
	}

	last := chain[len(chain)-1]
	column := last.RelatedTable + "." + last.RelatedSchema.IDColumn

	if set {
		return fs.WhereRelationIn(path, column, toAny(values)...), nil
	}

	return fs.WhereRelation(path, column, values[0]), nil
}

func lookup(params url.Values, key string) (string, bool) {
	vals, ok := params[key]
	if !ok || len(vals) == 0 {
		return "", false
	}

	return strings.TrimSpace(vals[0]), true
}

// flag reports a truthy parameter; a bare key counts as true
func flag(params url.Values, key string) bool {
	raw, ok := lookup(params, key)
	if !ok {
		return false
	}

	if raw == "" {
		return true
	}

	b, ok := schema.ParseBool(raw)

	return ok && b
}

// numericParam returns the integer value of key when it is numeric and >= minimum.
// Decimal and exponent forms are accepted and truncated.
func numericParam(params url.Values, key string, minimum int) (int, bool) {
	raw, ok := lookup(params, key)
	if !ok {
		return 0, false
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}

	n := int(f)
	if n < minimum {
		return 0, false
	}

	return n, true
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	return parts
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}

	return out
}
