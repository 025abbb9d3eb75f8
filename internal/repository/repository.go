// Package repository exposes per-entity read and write operations with typed
// failures on top of the query pipeline and the store.
package repository

import (
	"context"
	"fmt"
	"slices"

	apperrors "github.com/kyleking/lyre/internal/errors"
	"github.com/kyleking/lyre/internal/logging"
	"github.com/kyleking/lyre/internal/query"
	"github.com/kyleking/lyre/internal/registry"
	"github.com/kyleking/lyre/internal/schema"
)

// Store is the row source and sink a repository works against
type Store interface {
	Query(table string) query.Queryable
	Insert(ctx context.Context, table, idColumn string, payload map[string]any) (any, error)
	Update(ctx context.Context, table, idColumn string, ids []any, payload map[string]any) (int64, error)
	Delete(ctx context.Context, table, idColumn string, ids []any) (int64, error)
	CountIn(ctx context.Context, table, column string, values []any) (int64, error)
}

// Factory hands out repositories sharing one store and pipeline
type Factory struct {
	store        Store
	introspector schema.Introspector
	pipeline     *query.Pipeline
	logger       *logging.Logger
}

// NewFactory creates a repository factory
func NewFactory(store Store, introspector schema.Introspector, pipeline *query.Pipeline, logger *logging.Logger) *Factory {
	return &Factory{
		store:        store,
		introspector: introspector,
		pipeline:     pipeline,
		logger:       logger.Component("repository"),
	}
}

// Registry returns the entity registry behind the pipeline
func (f *Factory) Registry() *registry.Registry {
	return f.pipeline.Resolver().Registry()
}

// For returns the repository of entity
func (f *Factory) For(entity string) (*Repository, error) {
	e, err := f.Registry().Lookup(entity)
	if err != nil {
		return nil, err
	}

	return &Repository{
		entity:       e,
		store:        f.store,
		introspector: f.introspector,
		pipeline:     f.pipeline,
		logger:       f.logger.WithField("entity", e.Name),
	}, nil
}

// Repository runs operations against one entity's table
type Repository struct {
	entity       *registry.Entity
	store        Store
	introspector schema.Introspector
	pipeline     *query.Pipeline
	logger       *logging.Logger
}

// Entity returns the declaration the repository serves
func (r *Repository) Entity() *registry.Entity {
	return r.entity
}

// Base returns the unfiltered query over the entity's table
func (r *Repository) Base() query.Queryable {
	return r.store.Query(r.entity.Table)
}

// All runs fs through the pipeline and collects the result
func (r *Repository) All(ctx context.Context, fs query.FilterSet) (*query.Result, error) {
	q, err := r.pipeline.Apply(ctx, r.entity.Name, r.Base(), fs)
	if err != nil {
		return nil, err
	}

	return query.Collect(ctx, q, fs)
}

// Find returns the row with the given ID, inactive rows included, with the
// entity's default includes and any extra paths eager-loaded.
func (r *Repository) Find(ctx context.Context, id any, with ...string) (query.Row, error) {
	row, err := r.FindOrNil(ctx, id, with...)
	if err != nil {
		return nil, err
	}

	if row == nil {
		return nil, apperrors.NewNotFound(r.entity.Name, id)
	}

	return row, nil
}

// FindOrNil is Find returning nil instead of NotFound
func (r *Repository) FindOrNil(ctx context.Context, id any, with ...string) (query.Row, error) {
	return r.first(ctx, r.entity.IDColumn, id, with)
}

// FindBy returns the first row whose column equals value
func (r *Repository) FindBy(ctx context.Context, column string, value any) (query.Row, error) {
	ok, err := r.introspector.HasColumn(ctx, r.entity.Table, column)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, apperrors.Newf(apperrors.ErrTypeValidation, "%s has no column %q", r.entity.Name, column)
	}

	row, err := r.first(ctx, column, value, nil)
	if err != nil {
		return nil, err
	}

	if row == nil {
		return nil, apperrors.NewNotFound(r.entity.Name, column, value)
	}

	return row, nil
}

func (r *Repository) first(ctx context.Context, column string, value any, with []string) (query.Row, error) {
	typ, err := r.introspector.ColumnType(ctx, r.entity.Table, column)
	if err != nil {
		return nil, err
	}

	value = schema.Coerce(typ, value)
	if !schema.Matchable(typ, value) {
		return nil, nil
	}

	fs := query.NewFilterSet(0).
		WithInactive().
		Where(column, value).
		With(with...).
		OrderBy(r.entity.IDColumn, query.Asc).
		First()

	result, err := r.All(ctx, fs)
	if err != nil {
		return nil, err
	}

	return result.First(), nil
}

// Create inserts payload and returns the stored row
func (r *Repository) Create(ctx context.Context, payload map[string]any) (query.Row, error) {
	effective, err := r.effectivePayload(ctx, payload)
	if err != nil {
		return nil, err
	}

	id, err := r.store.Insert(ctx, r.entity.Table, r.entity.IDColumn, effective)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrTypeDatabase, "failed to create %s", r.entity.Name)
	}

	r.logger.WithField("id", id).Info("created")

	return r.Find(ctx, id)
}

// Update writes payload to the row with the given ID and returns it
func (r *Repository) Update(ctx context.Context, id any, payload map[string]any) (query.Row, error) {
	effective, err := r.effectivePayload(ctx, payload)
	if err != nil {
		return nil, err
	}

	row, err := r.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	key := row[r.entity.IDColumn]
	if _, err := r.store.Update(ctx, r.entity.Table, r.entity.IDColumn, []any{key}, effective); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrTypeDatabase, "failed to update %s %v", r.entity.Name, id)
	}

	r.logger.WithField("id", key).Info("updated")

	return r.Find(ctx, key)
}

// UpdateMany writes payload to every listed row. Every ID must match a row.
func (r *Repository) UpdateMany(ctx context.Context, ids []any, payload map[string]any) (int64, error) {
	effective, err := r.effectivePayload(ctx, payload)
	if err != nil {
		return 0, err
	}

	keys, err := r.matchAll(ctx, ids)
	if err != nil {
		return 0, err
	}

	n, err := r.store.Update(ctx, r.entity.Table, r.entity.IDColumn, keys, effective)
	if err != nil {
		return 0, apperrors.Wrapf(err, apperrors.ErrTypeDatabase, "failed to update %s rows", r.entity.Name)
	}

	r.logger.WithField("count", n).Info("bulk updated")

	return n, nil
}

// Delete removes the row with the given ID
func (r *Repository) Delete(ctx context.Context, id any) error {
	row, err := r.Find(ctx, id)
	if err != nil {
		return err
	}

	key := row[r.entity.IDColumn]
	if _, err := r.store.Delete(ctx, r.entity.Table, r.entity.IDColumn, []any{key}); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrTypeDatabase, "failed to delete %s %v", r.entity.Name, id)
	}

	r.logger.WithField("id", key).Info("deleted")

	return nil
}

// DeleteMany removes every listed row. Every ID must match a row.
func (r *Repository) DeleteMany(ctx context.Context, ids []any) (int64, error) {
	keys, err := r.matchAll(ctx, ids)
	if err != nil {
		return 0, err
	}

	n, err := r.store.Delete(ctx, r.entity.Table, r.entity.IDColumn, keys)
	if err != nil {
		return 0, apperrors.Wrapf(err, apperrors.ErrTypeDatabase, "failed to delete %s rows", r.entity.Name)
	}

	r.logger.WithField("count", n).Info("bulk deleted")

	return n, nil
}

// SetStatus stores the code mapped to statusName on the row with the given ID
func (r *Repository) SetStatus(ctx context.Context, id any, statusName string) (query.Row, error) {
	code, err := r.entity.StatusCode(statusName)
	if err != nil {
		return nil, err
	}

	return r.Update(ctx, id, map[string]any{r.entity.StatusColumn: code})
}

// matchAll coerces and de-duplicates ids and fails unless each one matches a row
func (r *Repository) matchAll(ctx context.Context, ids []any) ([]any, error) {
	typ, err := r.introspector.ColumnType(ctx, r.entity.Table, r.entity.IDColumn)
	if err != nil {
		return nil, err
	}

	keys := make([]any, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	requested := 0

	for _, id := range ids {
		key := schema.Coerce(typ, id)

		k := fmt.Sprint(key)
		if seen[k] {
			continue
		}

		seen[k] = true
		requested++

		if schema.Matchable(typ, key) {
			keys = append(keys, key)
		}
	}

	if requested == 0 {
		return nil, apperrors.NewCountMismatch(r.entity.Name, 0, 0)
	}

	matched, err := r.store.CountIn(ctx, r.entity.Table, r.entity.IDColumn, keys)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrTypeDatabase, "failed to count %s rows", r.entity.Name)
	}

	if int(matched) != requested {
		return nil, apperrors.NewCountMismatch(r.entity.Name, requested, int(matched))
	}

	return keys, nil
}

// effectivePayload keeps the keys that are physical, non-ID columns, with
// string values coerced to the column type.
func (r *Repository) effectivePayload(ctx context.Context, payload map[string]any) (map[string]any, error) {
	columns, err := r.introspector.ColumnListing(ctx, r.entity.Table)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(payload))

	for key, value := range payload {
		if key == r.entity.IDColumn || !slices.Contains(columns, key) {
			continue
		}

		typ, err := r.introspector.ColumnType(ctx, r.entity.Table, key)
		if err != nil {
			return nil, err
		}

		out[key] = schema.Coerce(typ, value)
	}

	if len(out) == 0 {
		return nil, apperrors.NewEmptyPayload(r.entity.Name)
	}

	return out, nil
}
