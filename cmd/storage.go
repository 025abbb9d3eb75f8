package cmd

import (
	"context"
	"fmt"

	"github.com/kyleking/lyre/internal/catalog"
	"github.com/kyleking/lyre/internal/config"
	apperrors "github.com/kyleking/lyre/internal/errors"
	"github.com/kyleking/lyre/internal/logging"
	"github.com/kyleking/lyre/internal/query"
	"github.com/kyleking/lyre/internal/registry"
	"github.com/kyleking/lyre/internal/repository"
	"github.com/kyleking/lyre/internal/resource"
	"github.com/kyleking/lyre/internal/storage"
)

// app bundles the collaborators every command runs against
type app struct {
	cfg        *config.Config
	store      *storage.Store
	registry   *registry.Registry
	resolver   *registry.Resolver
	pipeline   *query.Pipeline
	parser     *query.Parser
	repos      *repository.Factory
	serializer *resource.Serializer
	logger     *logging.Logger
}

// initializeStorage opens the configured database, applying pending
// migrations when migrate is set, and wires the bundled catalog to it.
func initializeStorage(ctx context.Context, cfg *config.Config, logger *logging.Logger, migrate bool) (*app, error) {
	store, err := storage.OpenFromConfig(cfg, logger)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTypeDatabase, "failed to open database").
			WithSuggestion(fmt.Sprintf("Check that %s is writable", config.ExpandPath(cfg.Database.Path)))
	}

	if migrate {
		if err := store.Initialize(ctx); err != nil {
			store.Close()
			return nil, apperrors.Wrap(err, apperrors.ErrTypeDatabase, "failed to initialize database schema")
		}
	}

	a, err := newApp(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	return a, nil
}

// newApp wires the catalog, resolver, pipeline and parser over store
func newApp(cfg *config.Config, store *storage.Store, logger *logging.Logger) (*app, error) {
	reg, err := catalog.Registry()
	if err != nil {
		return nil, err
	}

	resolver, err := registry.NewResolver(reg,
		registry.WithCacheSize(cfg.Cache.RelationCacheSize),
		registry.WithLenient(cfg.Query.Lenient))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTypeInternal, "failed to build relation resolver")
	}

	pipeline := query.NewPipeline(resolver, store.Introspector(),
		query.WithScopes(catalog.Scopes()), query.WithLogger(logger))

	return &app{
		cfg:      cfg,
		store:    store,
		registry: reg,
		resolver: resolver,
		pipeline: pipeline,
		parser: query.NewParser(resolver, store.Introspector(), query.Defaults{
			PerPage:    cfg.Query.DefaultPerPage,
			MaxPerPage: cfg.Query.MaxPerPage,
		}, logger),
		repos:      repository.NewFactory(store, store.Introspector(), pipeline, logger),
		serializer: resource.NewSerializer(reg),
		logger:     logger,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
