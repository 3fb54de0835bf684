package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/strongroomhq/strongroom/pkg/log"
	"github.com/strongroomhq/strongroom/pkg/metrics"
	"github.com/strongroomhq/strongroom/pkg/reconcile"
	"github.com/strongroomhq/strongroom/pkg/storage"
	"github.com/strongroomhq/strongroom/pkg/workflow"
)

// Config configures the HTTP server.
type Config struct {
	ListenAddr string
	// JWTSecret is the HS256 key checked on /v2 routes. Empty disables
	// authentication; NewServer logs a warning when that happens.
	JWTSecret string
	// Version is reported by /healthz.
	Version string
}

// Server is the HTTP surface: reconciliation and workflow endpoints under
// /v2, health probes and the Prometheus scrape endpoint.
type Server struct {
	cfg       Config
	store     storage.Store
	reconcile *reconcile.Service
	workflows *workflow.Orchestrator
	logger    zerolog.Logger

	httpServer *http.Server
}

// NewServer wires the router. The store backs the readiness probe; the
// service and orchestrator handle the domain endpoints.
func NewServer(cfg Config, store storage.Store, svc *reconcile.Service, orch *workflow.Orchestrator) *Server {
	s := &Server{
		cfg:       cfg,
		store:     store,
		reconcile: svc,
		workflows: orch,
		logger:    log.WithComponent("api"),
	}
	if cfg.JWTSecret == "" {
		s.logger.Warn().Msg("server.jwtSecret is empty; /v2 endpoints accept unauthenticated requests")
	}

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler builds the route tree. Exposed so tests can drive the server
// through httptest without a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.StripSlashes)
	r.Use(s.recoverPanics)
	r.Use(s.instrument)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v2", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/reconciliation", func(r chi.Router) {
			r.Post("/addresses/{address}/chain/{chainAlias}/reconcile", s.handleReconcile)
			r.Get("/addresses/{address}/chain/{chainAlias}/reconciliation-jobs", s.handleListJobs)
			r.Get("/reconciliation-jobs/{jobID}", s.handleGetJob)
		})

		r.Route("/workflows", func(r chi.Router) {
			r.Post("/", s.handleCreateWorkflow)
			r.Get("/{workflowID}", s.handleGetWorkflow)
			r.Get("/{workflowID}/history", s.handleWorkflowHistory)
			r.Post("/{workflowID}/{verb}", s.handleWorkflowVerb)
		})
	})

	return r
}

// Start serves HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.logger.Info().Str("listen_addr", s.cfg.ListenAddr).Msg("HTTP server listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
