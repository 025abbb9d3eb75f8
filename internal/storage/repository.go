package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func checkIdents(idents ...string) error {
	for _, ident := range idents {
		if !identPattern.MatchString(ident) {
			return fmt.Errorf("invalid identifier %q", ident)
		}
	}

	return nil
}

func sortedColumns(payload map[string]any) []string {
	cols := make([]string, 0, len(payload))
	for c := range payload {
		cols = append(cols, c)
	}

	sort.Strings(cols)

	return cols
}

// Insert writes one row and returns the value of its idColumn
func (s *Store) Insert(ctx context.Context, table, idColumn string, payload map[string]any) (any, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("insert into %s: empty payload", table)
	}

	cols := sortedColumns(payload)
	if err := checkIdents(append([]string{table, idColumn}, cols...)...); err != nil {
		return nil, err
	}

	quoted := make([]string, len(cols))
	args := make([]any, len(cols))

	for i, c := range cols {
		quoted[i] = quote(c)
		args[i] = payload[c]
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		quote(table), strings.Join(quoted, ", "), placeholders(len(cols)), quote(idColumn))

	var id any
	if err := s.db.QueryRowxContext(ctx, sql, args...).Scan(&id); err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	return normalizeValue(id), nil
}

// Update sets payload on the rows whose idColumn is in ids and returns the affected count
func (s *Store) Update(ctx context.Context, table, idColumn string, ids []any, payload map[string]any) (int64, error) {
	if len(ids) == 0 || len(payload) == 0 {
		return 0, nil
	}

	cols := sortedColumns(payload)
	if err := checkIdents(append([]string{table, idColumn}, cols...)...); err != nil {
		return 0, err
	}

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(ids))

	for i, c := range cols {
		sets[i] = quote(c) + " = ?"
		args = append(args, payload[c])
	}

	args = append(args, ids...)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s IN (%s)",
		quote(table), strings.Join(sets, ", "), quote(idColumn), placeholders(len(ids)))

	res, err := s.db.ExecContext(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", table, err)
	}

	return res.RowsAffected()
}

// Delete removes the rows whose idColumn is in ids and returns the affected count
func (s *Store) Delete(ctx context.Context, table, idColumn string, ids []any) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	if err := checkIdents(table, idColumn); err != nil {
		return 0, err
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", quote(table), quote(idColumn), placeholders(len(ids)))

	res, err := s.db.ExecContext(ctx, sql, ids...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, err)
	}

	return res.RowsAffected()
}

// CountIn counts the rows of table whose column is in values
func (s *Store) CountIn(ctx context.Context, table, column string, values []any) (int64, error) {
	return s.Query(table).WhereIn(column, values).Count(ctx)
}
