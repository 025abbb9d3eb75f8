package registry

import (
	"errors"
	"slices"
	"sort"
	"strings"

	"github.com/kyleking/lyre/internal/cache"
	apperrors "github.com/kyleking/lyre/internal/errors"
	"github.com/kyleking/lyre/internal/schema"
)

// ErrUnresolvableRelation is wrapped by every relation-path resolution failure
var ErrUnresolvableRelation = errors.New("unresolvable relation")

// RelationDescriptor is the resolved metadata for one segment of a relation path
type RelationDescriptor struct {
	Name             string              `json:"name"`
	Kind             RelationKind        `json:"kind"`
	Cardinality      Cardinality         `json:"cardinality"`
	ForeignKeyColumn string              `json:"foreign_key_column"`
	RelatedKeyColumn string              `json:"related_key_column"`
	LocalTable       string              `json:"local_table"`
	RelatedTable     string              `json:"related_table"`
	RelatedEntity    string              `json:"related_entity"`
	RelatedSchema    schema.ColumnSchema `json:"related_schema"`
}

// LocalColumn is the column on the owning table that takes part in the join
func (d RelationDescriptor) LocalColumn() string {
	if d.Kind == BelongsTo {
		return d.ForeignKeyColumn
	}

	return d.RelatedKeyColumn
}

// RemoteColumn is the column on the related table that takes part in the join
func (d RelationDescriptor) RemoteColumn() string {
	if d.Kind == BelongsTo {
		return d.RelatedKeyColumn
	}

	return d.ForeignKeyColumn
}

type pathKey struct {
	entity string
	path   string
}

type depthKey struct {
	entity string
	depth  int
}

// Resolver walks dotted relation paths through the registry. Resolutions and
// declared-relationship sets are cached for the life of the process.
type Resolver struct {
	registry      *Registry
	chains        *cache.Cache[pathKey, []RelationDescriptor]
	relationships *cache.Cache[depthKey, []string]
	lenient       bool
}

// ResolverOption configures a Resolver
type ResolverOption func(*resolverOptions)

type resolverOptions struct {
	cacheSize int
	lenient   bool
}

// WithCacheSize bounds each of the resolver's caches
func WithCacheSize(size int) ResolverOption {
	return func(o *resolverOptions) { o.cacheSize = size }
}

// WithLenient controls whether callers drop unresolvable clauses (true) or fail (false)
func WithLenient(lenient bool) ResolverOption {
	return func(o *resolverOptions) { o.lenient = lenient }
}

// NewResolver creates a lenient resolver over reg
func NewResolver(reg *Registry, opts ...ResolverOption) (*Resolver, error) {
	o := resolverOptions{cacheSize: cache.DefaultSize, lenient: true}
	for _, opt := range opts {
		opt(&o)
	}

	chains, err := cache.New[pathKey, []RelationDescriptor](o.cacheSize)
	if err != nil {
		return nil, err
	}

	relationships, err := cache.New[depthKey, []string](o.cacheSize)
	if err != nil {
		return nil, err
	}

	return &Resolver{
		registry:      reg,
		chains:        chains,
		relationships: relationships,
		lenient:       o.lenient,
	}, nil
}

// Registry returns the registry the resolver walks
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// Lenient reports whether unresolvable clauses should be skipped
func (r *Resolver) Lenient() bool {
	return r.lenient
}

// Resolve returns one descriptor per segment of path, starting at root
func (r *Resolver) Resolve(root, path string) ([]RelationDescriptor, error) {
	chain, err := r.chains.GetOrSet(pathKey{entity: root, path: path}, func() ([]RelationDescriptor, error) {
		return r.walk(root, path)
	})
	if err != nil {
		return nil, err
	}

	return slices.Clone(chain), nil
}

func (r *Resolver) walk(root, path string) ([]RelationDescriptor, error) {
	current, ok := r.registry.Entity(root)
	if !ok {
		return nil, unresolvable(root, path, "unknown entity")
	}

	if path == "" {
		return nil, unresolvable(root, path, "empty path")
	}

	segments := strings.Split(path, ".")
	chain := make([]RelationDescriptor, 0, len(segments))

	for _, segment := range segments {
		rel, ok := current.Relations[segment]
		if !ok {
			return nil, unresolvable(root, path, current.Name+" declares no relation "+segment)
		}

		target, ok := r.registry.Entity(rel.Target)
		if !ok {
			return nil, unresolvable(root, path, "unknown target "+rel.Target)
		}

		chain = append(chain, RelationDescriptor{
			Name:             segment,
			Kind:             rel.Kind,
			Cardinality:      rel.Cardinality(),
			ForeignKeyColumn: rel.ForeignKey,
			RelatedKeyColumn: rel.OwnerKey,
			LocalTable:       current.Table,
			RelatedTable:     target.Table,
			RelatedEntity:    target.Name,
			RelatedSchema:    target.Schema(),
		})

		current = target
	}

	return chain, nil
}

func unresolvable(root, path, reason string) error {
	return apperrors.Wrapf(ErrUnresolvableRelation, apperrors.ErrTypeValidation,
		"cannot resolve relation %q on %s: %s", path, root, reason)
}

// Target returns the entity at the end of path
func (r *Resolver) Target(root, path string) (*Entity, error) {
	chain, err := r.Resolve(root, path)
	if err != nil {
		return nil, err
	}

	target, _ := r.registry.Entity(chain[len(chain)-1].RelatedEntity)

	return target, nil
}

// Relationships returns every dotted relation path declared on entity up to
// depth segments, sorted. Results are cached per (entity, depth).
func (r *Resolver) Relationships(entity string, depth int) ([]string, error) {
	if depth < 1 {
		depth = 1
	}

	paths, err := r.relationships.GetOrSet(depthKey{entity: entity, depth: depth}, func() ([]string, error) {
		e, ok := r.registry.Entity(entity)
		if !ok {
			return nil, unresolvable(entity, "", "unknown entity")
		}

		var out []string

		r.collect(e, "", depth, &out)
		sort.Strings(out)

		return out, nil
	})
	if err != nil {
		return nil, err
	}

	return slices.Clone(paths), nil
}

// collect expands one level at a time from the static declarations
func (r *Resolver) collect(e *Entity, prefix string, depth int, out *[]string) {
	for _, name := range e.RelationNames() {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		*out = append(*out, path)

		if depth > 1 {
			if target, ok := r.registry.Entity(e.Relations[name].Target); ok {
				r.collect(target, path, depth-1, out)
			}
		}
	}
}

// IsDeclared reports whether path is a declared relation path of entity
func (r *Resolver) IsDeclared(entity, path string) bool {
	if path == "" {
		return false
	}

	paths, err := r.Relationships(entity, strings.Count(path, ".")+1)
	if err != nil {
		return false
	}

	_, found := slices.BinarySearch(paths, path)

	return found
}
