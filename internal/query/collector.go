package query

import (
	"context"
)

// PageMeta describes one page of a paginated result
type PageMeta struct {
	CurrentPage int   `json:"current_page"`
	LastPage    int   `json:"last_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
}

// Result is the materialized output of one pipeline run. Single results
// hold at most one row; paginated results carry Meta.
type Result struct {
	Rows   []Row
	Meta   *PageMeta
	Single bool
}

// First returns the first row, or nil
func (r *Result) First() Row {
	if r == nil || len(r.Rows) == 0 {
		return nil
	}

	return r.Rows[0]
}

// Collect materializes q in exactly one mode: first row, limited list, page, or everything
func Collect(ctx context.Context, q Queryable, fs FilterSet) (*Result, error) {
	switch {
	case fs.first:
		row, err := q.First(ctx)
		if err != nil {
			return nil, err
		}

		result := &Result{Single: true}
		if row != nil {
			result.Rows = []Row{row}
		}

		return result, nil

	case fs.limit != nil:
		rows, err := q.Limit(*fs.limit).Get(ctx)
		if err != nil {
			return nil, err
		}

		return &Result{Rows: rows}, nil

	case !fs.unpaginated:
		perPage, page := fs.PageSize(), fs.CurrentPage()

		rows, total, err := q.Paginate(ctx, perPage, page)
		if err != nil {
			return nil, err
		}

		return &Result{Rows: rows, Meta: &PageMeta{
			CurrentPage: page,
			LastPage:    LastPage(total, perPage),
			PerPage:     perPage,
			Total:       total,
		}}, nil

	default:
		rows, err := q.Get(ctx)
		if err != nil {
			return nil, err
		}

		return &Result{Rows: rows}, nil
	}
}

// LastPage is the number of pages total rows fill, never less than one
func LastPage(total int64, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 1
	}

	return int((total + int64(perPage) - 1) / int64(perPage))
}
