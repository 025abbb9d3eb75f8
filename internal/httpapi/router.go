// Package httpapi exposes the query-string surface of every registered
// entity over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kyleking/lyre/internal/logging"
	"github.com/kyleking/lyre/internal/monitor"
	"github.com/kyleking/lyre/internal/query"
	"github.com/kyleking/lyre/internal/registry"
	"github.com/kyleking/lyre/internal/repository"
	"github.com/kyleking/lyre/internal/resource"
)

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers run against
type Deps struct {
	Repositories  *repository.Factory
	Parser        *query.Parser
	Resolver      *registry.Resolver
	Serializer    *resource.Serializer
	Health        Pinger
	Monitor       *monitor.MemoryMonitor
	Logger        *logging.Logger
	RelationDepth int
}

type Handler struct {
	repos         *repository.Factory
	parser        *query.Parser
	resolver      *registry.Resolver
	serializer    *resource.Serializer
	health        Pinger
	monitor       *monitor.MemoryMonitor
	logger        *logging.Logger
	relationDepth int
}

func NewRouter(deps Deps) http.Handler {
	h := &Handler{
		repos:         deps.Repositories,
		parser:        deps.Parser,
		resolver:      deps.Resolver,
		serializer:    deps.Serializer,
		health:        deps.Health,
		monitor:       deps.Monitor,
		logger:        deps.Logger.Component("http"),
		relationDepth: deps.RelationDepth,
	}

	if h.relationDepth < 1 {
		h.relationDepth = 1
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(api chi.Router) {
		api.Get("/{entity}", h.handleList)
		api.Get("/{entity}/relationships", h.handleRelationships)
		api.Get("/{entity}/{id}", h.handleShow)
		api.Patch("/{entity}/{id}", h.handleUpdate)
		api.Delete("/{entity}/{id}", h.handleDelete)
	})

	return r
}
