package registry

import (
	"maps"
	"slices"
	"sort"

	apperrors "github.com/kyleking/lyre/internal/errors"
	"github.com/kyleking/lyre/internal/schema"
)

// RelationKind says which side of a relation owns the foreign key
type RelationKind string

const (
	BelongsTo RelationKind = "belongs_to" // foreign key on this entity's table
	HasOne    RelationKind = "has_one"    // foreign key on the related table
	HasMany   RelationKind = "has_many"   // foreign key on the related table
)

// Cardinality of a relation as seen from its owner
type Cardinality string

const (
	One  Cardinality = "one"
	Many Cardinality = "many"
)

// Relation is a statically declared association from one entity to another
type Relation struct {
	Kind   RelationKind `json:"kind"`
	Target string       `json:"target"`
	// ForeignKey lives on the owning table for BelongsTo, on the target otherwise.
	ForeignKey string `json:"foreign_key"`
	// OwnerKey is the referenced key; defaults to the ID column of the referenced side.
	OwnerKey string `json:"owner_key,omitempty"`
}

// Cardinality returns One for BelongsTo/HasOne and Many for HasMany
func (r Relation) Cardinality() Cardinality {
	if r.Kind == HasMany {
		return Many
	}

	return One
}

// Entity is the registry entry for one queryable entity type
type Entity struct {
	Name       string `json:"name"`
	Table      string `json:"table"`
	IDColumn   string `json:"id_column"`
	NameColumn string `json:"name_column,omitempty"`
	// Foreign columns are hidden from serialization and free-text search.
	Foreign []string `json:"foreign,omitempty"`
	// Serializable overrides the searchable column set when non-empty.
	Serializable []string `json:"serializable,omitempty"`

	CreatedColumn string         `json:"created_column,omitempty"`
	StatusColumn  string         `json:"status_column,omitempty"`
	Statuses      map[string]any `json:"statuses,omitempty"`
	// ActiveValue, when set, scopes queries to StatusColumn = ActiveValue unless inactive rows are requested.
	ActiveValue any `json:"active_value,omitempty"`

	Includes  []string            `json:"includes,omitempty"`
	Relations map[string]Relation `json:"relations,omitempty"`
}

// Schema returns the declared column metadata, without physical columns
func (e *Entity) Schema() schema.ColumnSchema {
	return schema.ColumnSchema{
		Table:      e.Table,
		IDColumn:   e.IDColumn,
		NameColumn: e.NameColumn,
		Foreign:    slices.Clone(e.Foreign),
	}
}

// HasActiveScope reports whether default queries hide inactive rows
func (e *Entity) HasActiveScope() bool {
	return e.StatusColumn != "" && e.ActiveValue != nil
}

// StatusCode maps a status name to the stored code. Entities that declare no
// status map store names verbatim.
func (e *Entity) StatusCode(name string) (any, error) {
	if e.StatusColumn == "" {
		return nil, apperrors.NewMissingMapping(e.Name, "status column")
	}

	if len(e.Statuses) == 0 {
		return name, nil
	}

	code, ok := e.Statuses[name]
	if !ok {
		return nil, apperrors.NewMissingMapping(e.Name, name)
	}

	return code, nil
}

// RelationNames returns the declared relation names in sorted order
func (e *Entity) RelationNames() []string {
	names := make([]string, 0, len(e.Relations))
	for name := range e.Relations {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Registry maps entity names to their declarations. It is immutable once built.
type Registry struct {
	entities map[string]*Entity
	byTable  map[string]*Entity
}

// New validates the declarations and fills defaults
func New(entities ...Entity) (*Registry, error) {
	r := &Registry{
		entities: make(map[string]*Entity, len(entities)),
		byTable:  make(map[string]*Entity, len(entities)),
	}

	for i := range entities {
		e := entities[i]
		if e.Name == "" || e.Table == "" {
			return nil, apperrors.Newf(apperrors.ErrTypeConfig, "entity %d must declare a name and a table", i)
		}

		if _, dup := r.entities[e.Name]; dup {
			return nil, apperrors.Newf(apperrors.ErrTypeConfig, "entity %q declared twice", e.Name)
		}

		if e.IDColumn == "" {
			e.IDColumn = "id"
		}

		e.Relations = maps.Clone(e.Relations)
		e.Statuses = maps.Clone(e.Statuses)

		r.entities[e.Name] = &e
		r.byTable[e.Table] = &e
	}

	for _, e := range r.entities {
		for name, rel := range e.Relations {
			target, ok := r.entities[rel.Target]
			if !ok {
				return nil, apperrors.Newf(apperrors.ErrTypeConfig,
					"relation %s.%s targets unknown entity %q", e.Name, name, rel.Target)
			}

			if rel.ForeignKey == "" {
				return nil, apperrors.Newf(apperrors.ErrTypeConfig,
					"relation %s.%s declares no foreign key", e.Name, name)
			}

			if rel.Kind == "" {
				rel.Kind = BelongsTo
			}

			if rel.OwnerKey == "" {
				if rel.Kind == BelongsTo {
					rel.OwnerKey = target.IDColumn
				} else {
					rel.OwnerKey = e.IDColumn
				}
			}

			e.Relations[name] = rel
		}
	}

	return r, nil
}

// Entity returns the declaration for name
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// Lookup is Entity returning a NotFound failure for unknown names
func (r *Registry) Lookup(name string) (*Entity, error) {
	e, ok := r.entities[name]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrTypeNotFound, "unknown entity %q", name).
			WithSuggestion("Run 'lyre entities' to list the registered entities")
	}

	return e, nil
}

// ByTable returns the entity stored in table
func (r *Registry) ByTable(table string) (*Entity, bool) {
	e, ok := r.byTable[table]
	return e, ok
}

// Names returns every registered entity name in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
