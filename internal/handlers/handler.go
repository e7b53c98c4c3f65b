// Package handlers exposes the core over a JSON HTTP API. Every row
// endpoint resolves the caller's access before any data is returned.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tesserahq/tessera/internal/events"
	"github.com/tesserahq/tessera/internal/infrastructure/metrics"
	"github.com/tesserahq/tessera/internal/repositories"
	"github.com/tesserahq/tessera/internal/services/access"
	"github.com/tesserahq/tessera/internal/services/filtering"
	"github.com/tesserahq/tessera/internal/services/registry"
	"github.com/tesserahq/tessera/internal/services/relations"
	"github.com/tesserahq/tessera/internal/services/values"
)

// Handler wires the core services behind the HTTP surface.
type Handler struct {
	registry *registry.Registry
	values   *values.Service
	graph    *relations.Graph
	resolver *access.Resolver
	compiler *filtering.Compiler
	rows     repositories.RowRepository
	events   *events.Dispatcher
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// New creates the HTTP handler set. dispatcher and metrics may be nil.
func New(
	reg *registry.Registry,
	vals *values.Service,
	graph *relations.Graph,
	resolver *access.Resolver,
	compiler *filtering.Compiler,
	rows repositories.RowRepository,
	dispatcher *events.Dispatcher,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		registry: reg,
		values:   vals,
		graph:    graph,
		resolver: resolver,
		compiler: compiler,
		rows:     rows,
		events:   dispatcher,
		metrics:  collector,
		logger:   logger,
	}
}

// Routes builds the router for the /v1 API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/entities", h.listEntities)
		r.Get("/entities/{name}", h.getEntity)

		r.Get("/entities/{name}/rows", h.listRows)
		r.Post("/entities/{name}/rows", h.createRow)
		r.Post("/entities/{name}/rows/search", h.searchRows)

		r.Get("/rows/{id}", h.getRow)
		r.Patch("/rows/{id}", h.updateRow)
		r.Get("/rows/{id}/access", h.getAccess)

		r.Get("/rows/{id}/relations/{entity}", h.listRelated)
		r.Put("/rows/{id}/relations/{childID}", h.attachRow)
		r.Delete("/rows/{id}/relations/{childID}", h.detachRow)
	})
	return r
}
