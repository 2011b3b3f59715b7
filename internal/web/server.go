// Package web serves the crashdb JSON API over chi.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/crashdb/internal/config"
	"github.com/JonMunkholm/crashdb/internal/core"
	"github.com/JonMunkholm/crashdb/internal/web/middleware"
)

// Pinger checks that storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the record API.
type Server struct {
	service *core.Service
	store   Pinger
	cfg     *config.Config
	metrics http.Handler
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server. metrics may be nil when exposition is
// disabled.
func NewServer(service *core.Service, store Pinger, cfg *config.Config, metrics http.Handler) *Server {
	s := &Server{
		service: service,
		store:   store,
		cfg:     cfg,
		metrics: metrics,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(middleware.SecurityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, s.cfg.Metrics.Path, s.metrics)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.Security))
		r.Use(middleware.MaxBytes(s.cfg.Write.MaxBodyBytes))

		r.Route("/crashes", func(r chi.Router) {
			r.Get("/", s.handleListCrashes)
			r.Post("/", s.handleCreateCrash)
			r.Get("/{id}", s.handleGetCrash)
			r.Put("/{id}", s.handleUpdateCrash)
			r.Delete("/{id}", s.handleDeleteCrash)
		})

		r.Route("/people", func(r chi.Router) {
			r.Get("/", s.handleListPeople)
			r.Post("/", s.handleCreatePerson)
			r.Get("/{id}", s.handleGetPerson)
			r.Put("/{id}", s.handleUpdatePerson)
			r.Delete("/{id}", s.handleDeletePerson)
		})

		r.Route("/vehicles", func(r chi.Router) {
			r.Get("/", s.handleListVehicles)
			r.Post("/", s.handleCreateVehicle)
			r.Get("/{id}", s.handleGetVehicle)
			r.Put("/{id}", s.handleUpdateVehicle)
			r.Delete("/{id}", s.handleDeleteVehicle)
		})

		r.Route("/details", func(r chi.Router) {
			r.Get("/", s.handleListDetailTables)
			r.Post("/{table}", s.handleCreateDetail)
			r.Get("/{table}/{parentID}", s.handleGetDetail)
			r.Put("/{table}/{parentID}", s.handleUpdateDetail)
			r.Delete("/{table}/{parentID}", s.handleDeleteDetail)
		})
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
