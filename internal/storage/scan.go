package storage

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/kyleking/lyre/internal/query"
	"github.com/kyleking/lyre/internal/registry"
)

// selectRows runs a read under the store's query timeout and scans every row into a map
func (s *Store) selectRows(ctx context.Context, sql string, args []any) ([]query.Row, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.logger.WithField("sql", sql).Debug("executing query")

	rows, err := s.db.QueryxContext(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	return scanRows(rows)
}

func scanRows(rows *sqlx.Rows) ([]query.Row, error) {
	defer rows.Close()

	out := make([]query.Row, 0)

	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		for k, v := range m {
			m[k] = normalizeValue(v)
		}

		out = append(out, m)
	}

	return out, rows.Err()
}

// normalizeValue folds driver integer widths into int64 and floats into
// float64 so rows compare and serialize the same regardless of column width.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x)
		}

		return x
	case float32:
		return float64(x)
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}

		return x.String()
	case interface{ Float64() float64 }:
		return x.Float64()
	default:
		return v
	}
}

type includeNode struct {
	desc     registry.RelationDescriptor
	children map[string]*includeNode
}

// buildIncludeTree merges include chains sharing a prefix
func buildIncludeTree(includes []include) map[string]*includeNode {
	root := make(map[string]*includeNode)

	for _, inc := range includes {
		level := root
		for _, d := range inc.chain {
			node, ok := level[d.Name]
			if !ok {
				node = &includeNode{desc: d, children: make(map[string]*includeNode)}
				level[d.Name] = node
			}

			level = node.children
		}
	}

	return root
}

func relationKey(v any) string {
	return fmt.Sprint(normalizeValue(v))
}

// eagerLoad fetches each related set with one IN query per relation and
// nests it under the relation name: a Row (or nil) for to-one relations,
// a []Row for to-many relations.
func (s *Store) eagerLoad(ctx context.Context, parents []query.Row, nodes map[string]*includeNode) error {
	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		node := nodes[name]
		d := node.desc

		seen := make(map[string]bool)

		var keys []any

		for _, parent := range parents {
			v := parent[d.LocalColumn()]
			if v == nil || seen[relationKey(v)] {
				continue
			}

			seen[relationKey(v)] = true
			keys = append(keys, v)
		}

		var related []query.Row

		if len(keys) > 0 {
			q := s.Query(d.RelatedTable).WhereIn(d.RemoteColumn(), keys)
			if id := d.RelatedSchema.IDColumn; id != "" {
				q = q.OrderBy(id, query.Asc)
			}

			var err error
			if related, err = q.Get(ctx); err != nil {
				return fmt.Errorf("failed to load relation %s: %w", d.Name, err)
			}

			if len(node.children) > 0 && len(related) > 0 {
				if err := s.eagerLoad(ctx, related, node.children); err != nil {
					return err
				}
			}
		}

		index := make(map[string][]query.Row, len(related))
		for _, row := range related {
			k := relationKey(row[d.RemoteColumn()])
			index[k] = append(index[k], row)
		}

		for _, parent := range parents {
			var matches []query.Row
			if v := parent[d.LocalColumn()]; v != nil {
				matches = index[relationKey(v)]
			}

			if d.Cardinality == registry.One {
				if len(matches) > 0 {
					parent[d.Name] = matches[0]
				} else {
					parent[d.Name] = nil
				}

				continue
			}

			if matches == nil {
				matches = []query.Row{}
			}

			parent[d.Name] = matches
		}
	}

	return nil
}
