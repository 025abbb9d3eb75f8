// Package resource converts materialized rows into their transport shape.
package resource

import (
	"slices"
	"strings"
	"time"

	"github.com/kyleking/lyre/internal/query"
	"github.com/kyleking/lyre/internal/registry"
)

// Object is one serialized row
type Object map[string]any

// Page is the envelope of a paginated result
type Page struct {
	Data []Object       `json:"data"`
	Meta query.PageMeta `json:"meta"`
}

// Serializer renders rows of registered entities. Foreign columns are
// hidden, eager-loaded relations are rendered with their own entity's rules.
type Serializer struct {
	registry *registry.Registry
}

// NewSerializer creates a serializer over reg
func NewSerializer(reg *registry.Registry) *Serializer {
	return &Serializer{registry: reg}
}

// Result renders a collected result: an Object (or nil) for single results,
// a Page for paginated results, a slice otherwise.
func (s *Serializer) Result(entity string, result *query.Result) any {
	switch {
	case result == nil:
		return []Object{}
	case result.Single:
		if row := result.First(); row != nil {
			return s.Row(entity, row)
		}

		return nil
	case result.Meta != nil:
		return Page{Data: s.Rows(entity, result.Rows), Meta: *result.Meta}
	default:
		return s.Rows(entity, result.Rows)
	}
}

// Rows renders every row; the slice is never nil
func (s *Serializer) Rows(entity string, rows []query.Row) []Object {
	out := make([]Object, 0, len(rows))
	for _, row := range rows {
		out = append(out, s.Row(entity, row))
	}

	return out
}

// Row renders one row of entity. Unknown entities pass through unfiltered.
func (s *Serializer) Row(entity string, row query.Row) Object {
	if row == nil {
		return nil
	}

	e, ok := s.registry.Entity(entity)
	if !ok {
		out := make(Object, len(row))
		for k, v := range row {
			out[k] = value(v)
		}

		return out
	}

	out := make(Object, len(row))

	for key, v := range row {
		if rel, isRelation := e.Relations[key]; isRelation {
			out[key] = s.relation(rel.Target, v)
			continue
		}

		if !s.visible(e, key) {
			continue
		}

		out[key] = value(v)
	}

	return out
}

func (s *Serializer) relation(target string, v any) any {
	switch related := v.(type) {
	case query.Row:
		return s.Row(target, related)
	case []query.Row:
		return s.Rows(target, related)
	default:
		return nil
	}
}

// visible hides foreign columns and, when the entity lists serializable
// columns, anything outside that list. Count annotations always show.
func (s *Serializer) visible(e *registry.Entity, column string) bool {
	if slices.Contains(e.Foreign, column) {
		return false
	}

	if len(e.Serializable) == 0 || strings.HasSuffix(column, "_count") {
		return true
	}

	return slices.Contains(e.Serializable, column)
}

// value renders calendar dates without a time part
func value(v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}

	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(time.DateOnly)
	}

	return t.Format(time.RFC3339)
}
