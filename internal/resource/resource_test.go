package resource

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/lyre/internal/catalog"
	"github.com/kyleking/lyre/internal/query"
)

func newSerializer(t *testing.T) *Serializer {
	t.Helper()

	reg, err := catalog.Registry()
	require.NoError(t, err)

	return NewSerializer(reg)
}

func TestRowHidesForeignColumnsAndNestsRelations(t *testing.T) {
	s := newSerializer(t)

	row := query.Row{
		"id":            int64(1),
		"name":          "Ada Lovelace",
		"department_id": int64(1),
		"department":    query.Row{"id": int64(1), "name": "Engineering"},
		"documents": []query.Row{
			{"id": int64(1), "title": "Notes", "owner_id": int64(1)},
		},
		"documents_count": int64(1),
	}

	got := s.Row(catalog.User, row)

	assert.Equal(t, Object{
		"id":              int64(1),
		"name":            "Ada Lovelace",
		"department":      Object{"id": int64(1), "name": "Engineering"},
		"documents":       []Object{{"id": int64(1), "title": "Notes"}},
		"documents_count": int64(1),
	}, got)
}

func TestRowMissingToOneRelation(t *testing.T) {
	s := newSerializer(t)

	got := s.Row(catalog.Document, query.Row{"id": int64(9), "owner_id": nil, "owner": nil})

	assert.Equal(t, Object{"id": int64(9), "owner": nil}, got)
}

func TestResultShapes(t *testing.T) {
	s := newSerializer(t)
	rows := []query.Row{{"id": int64(1), "number": "INV-001", "customer_id": int64(1)}}

	tests := []struct {
		name     string
		result   *query.Result
		expected any
	}{
		{
			name:     "single",
			result:   &query.Result{Rows: rows, Single: true},
			expected: Object{"id": int64(1), "number": "INV-001"},
		},
		{
			name:     "single empty",
			result:   &query.Result{Single: true},
			expected: nil,
		},
		{
			name:     "list",
			result:   &query.Result{Rows: rows},
			expected: []Object{{"id": int64(1), "number": "INV-001"}},
		},
		{
			name:     "empty list",
			result:   &query.Result{},
			expected: []Object{},
		},
		{
			name:   "page",
			result: &query.Result{Rows: rows, Meta: &query.PageMeta{CurrentPage: 1, LastPage: 1, PerPage: 9, Total: 1}},
			expected: Page{
				Data: []Object{{"id": int64(1), "number": "INV-001"}},
				Meta: query.PageMeta{CurrentPage: 1, LastPage: 1, PerPage: 9, Total: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Result(catalog.Invoice, tt.result)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}

			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestPageJSON(t *testing.T) {
	s := newSerializer(t)

	page := s.Result(catalog.Invoice, &query.Result{
		Rows: []query.Row{{"id": int64(2)}},
		Meta: &query.PageMeta{CurrentPage: 2, LastPage: 3, PerPage: 1, Total: 3},
	})

	data, err := json.Marshal(page)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[{"id":2}],"meta":{"current_page":2,"last_page":3,"per_page":1,"total":3}}`, string(data))
}

func TestTemporalValues(t *testing.T) {
	s := newSerializer(t)

	got := s.Row(catalog.Invoice, query.Row{
		"issued_on":  time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		"created_at": time.Date(2024, time.March, 1, 9, 30, 0, 0, time.UTC),
	})

	assert.Equal(t, "2024-03-01", got["issued_on"])
	assert.Equal(t, "2024-03-01T09:30:00Z", got["created_at"])
}

func TestUnknownEntityPassesThrough(t *testing.T) {
	s := newSerializer(t)

	got := s.Row("ghost", query.Row{"secret_id": 1})
	assert.Equal(t, Object{"secret_id": 1}, got)
}
