package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/keeldb/keel/pkg/actions"
	"github.com/keeldb/keel/pkg/events"
	"github.com/keeldb/keel/pkg/storage"
	"github.com/keeldb/keel/pkg/taskqueue"
)

// Server exposes the control-plane admin API over HTTP/JSON.
type Server struct {
	store    storage.Store
	events   events.Publisher
	registry *actions.Registry
	queue    *taskqueue.Queue
	logger   zerolog.Logger

	httpServer *http.Server
}

// Config holds the dependencies of an API server.
type Config struct {
	Store    storage.Store
	Events   events.Publisher
	Registry *actions.Registry
	Queue    *taskqueue.Queue
	Logger   zerolog.Logger
}

// NewServer creates an API server.
func NewServer(cfg Config) *Server {
	return &Server{
		store:    cfg.Store,
		events:   cfg.Events,
		registry: cfg.Registry,
		queue:    cfg.Queue,
		logger:   cfg.Logger,
	}
}

// Start listens on addr and serves until Stop is called. It blocks.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down, draining in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/v1/kinds", s.handleListKinds)

	r.Route("/v1/clusters", func(r chi.Router) {
		r.Get("/", s.handleListClusters)

		r.Route("/{ns}/{cluster}", func(r chi.Router) {
			r.Get("/", s.handleGetCluster)
			r.Put("/", s.handlePutCluster)
			r.Get("/nodes", s.handleListNodes)
			r.Get("/reports", s.handleListReports)
			r.Post("/orchestrate", s.handleOrchestrate)

			r.Route("/actions", func(r chi.Router) {
				r.Get("/", s.handleListActions)
				r.Post("/", s.handleSubmitAction)
				r.Get("/{id}", s.handleGetAction)
				r.Post("/{id}/approve", s.handleApproveAction)
				r.Post("/{id}/reject", s.handleRejectAction)
				r.Post("/{id}/cancel", s.handleCancelAction)
			})
		})
	})

	return r
}
