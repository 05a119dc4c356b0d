// Package server implements the HTTP surface of spec §6 over the services
// built in internal/services: IntakeCoordinator (enqueue, check-and-load),
// DeletionCoordinator (purge), and the search/qa on-demand services. It owns
// exactly one response shape (the envelope in helpers.go) and one auth
// model (X-API-Key / X-Admin-Key in middleware.go).
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lumenfeed/ingest/internal/common"
	"github.com/lumenfeed/ingest/internal/interfaces"
	"github.com/lumenfeed/ingest/internal/services/auth"
	"github.com/lumenfeed/ingest/internal/services/deletion"
	"github.com/lumenfeed/ingest/internal/services/intake"
	"github.com/lumenfeed/ingest/internal/services/jobevents"
	"github.com/lumenfeed/ingest/internal/services/qa"
	"github.com/lumenfeed/ingest/internal/services/search"
)

// Server wires the HTTP surface to the already-constructed service layer.
type Server struct {
	server *http.Server
	logger *common.Logger
	config *common.Config

	storage  interfaces.StorageManager
	policy   *auth.Policy
	intake   *intake.Coordinator
	deletion *deletion.Coordinator
	search   *search.Service
	qa       *qa.Service
	events   *jobevents.Hub
}

// New builds a Server ready to Start. storage, policy, intake, deletion,
// search, qa, and events are constructed by internal/app and passed in fully
// formed.
func New(
	config *common.Config,
	logger *common.Logger,
	storage interfaces.StorageManager,
	policy *auth.Policy,
	intakeCoordinator *intake.Coordinator,
	deletionCoordinator *deletion.Coordinator,
	searchService *search.Service,
	qaService *qa.Service,
	events *jobevents.Hub,
) *Server {
	s := &Server{
		logger:   logger,
		config:   config,
		storage:  storage,
		policy:   policy,
		intake:   intakeCoordinator,
		deletion: deletionCoordinator,
		search:   searchService,
		qa:       qaService,
		events:   events,
	}

	mux := s.registerRoutes()
	handler := applyMiddleware(mux, logger)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving HTTP. Blocks until the listener stops; returns
// http.ErrServerClosed on a graceful Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the wrapped http.Handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
