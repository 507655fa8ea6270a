// Package web is the QA review server: it exposes stored runs, entities and
// pair provenance, and accepts manual overrides.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/energy-linkage/internal/logging"
	"github.com/energy-linkage/internal/match"
	"github.com/energy-linkage/internal/web/handlers"
	"github.com/energy-linkage/internal/web/middleware"
)

// Deps are the collaborators the server routes to.
type Deps struct {
	Backend   handlers.Backend
	Overrides handlers.OverrideRecorder
	// Metrics serves /metrics; nil disables the route.
	Metrics http.Handler
	// Model explains pair confidences; optional.
	Model  *match.LogisticModel
	Logger *zerolog.Logger
}

// Server represents the web server
type Server struct {
	config     *Config
	deps       Deps
	httpServer *http.Server
	router     *mux.Router
}

// NewServer creates a new web server instance
func NewServer(config *Config, deps Deps) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if deps.Backend == nil {
		return nil, errors.New("review server needs a backend")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}

	server := &Server{config: config, deps: deps}
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      server.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	handlerConfig := &handlers.Config{Debug: s.config.Debug}
	handlerConfig.Features.ManualOverrideEnabled = s.config.Features.ManualOverrideEnabled

	apiHandler := &handlers.APIHandler{Backend: s.deps.Backend, Config: handlerConfig}
	recordsHandler := &handlers.RecordsHandler{
		Backend:   s.deps.Backend,
		Config:    handlerConfig,
		Overrides: s.deps.Overrides,
		Model:     s.deps.Model,
	}

	s.router.HandleFunc("/healthz", apiHandler.Health).Methods("GET")
	if s.config.Features.MetricsEnabled && s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/runs/latest", apiHandler.LatestRun).Methods("GET")
	api.HandleFunc("/entities/{id:[0-9]+}", recordsHandler.GetEntity).Methods("GET")
	api.HandleFunc("/records/{dataset}/{year:[0-9]+}/{local_id}", recordsHandler.GetRecord).Methods("GET")

	if s.config.Features.ManualOverrideEnabled && s.deps.Overrides != nil {
		overridesHandler := &handlers.OverridesHandler{Recorder: s.deps.Overrides, Config: handlerConfig}
		api.HandleFunc("/overrides", overridesHandler.CreateOverride).Methods("POST", "OPTIONS")
	}

	s.router.Use(middleware.CORS())
	s.router.Use(middleware.RequestLogging(s.deps.Logger))

	if s.config.Auth.Enabled {
		api.Use(middleware.Authentication(s.config.Auth.APIKey, s.config.Auth.ReadOpen))
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	logger := s.deps.Logger
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", s.httpServer.Addr).Msg("starting review server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down review server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
