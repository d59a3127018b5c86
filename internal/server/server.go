// Package server exposes a read-only HTTP status API over the instance
// registry, recipe store, and discovery registry.
//
// The API serves monitoring dashboards and periodic exporters that want
// instance state without invoking the CLI. It never mutates state and never
// shells out to the scheduler; responses reflect the last persisted view.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hpckit/slurmbench/internal/config"
	"github.com/hpckit/slurmbench/pkg/discovery"
	"github.com/hpckit/slurmbench/pkg/manager"
)

// Server is the status API server.
type Server struct {
	cfg       config.ServerConfig
	version   string
	manager   *manager.Manager
	discovery *discovery.Store
	logger    *zap.Logger
	router    chi.Router
}

// New creates a Server. The discovery store may be nil, in which case the
// discovery routes report empty results.
func New(cfg config.ServerConfig, version string, mgr *manager.Manager, disc *discovery.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:       cfg,
		version:   version,
		manager:   mgr,
		discovery: disc,
		logger:    logger,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.cfg.Port
}

// Start runs the server until ctx is canceled, then shuts down gracefully
// within the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status api listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.recovery)

	r.NotFound(notFoundHandler)
	r.MethodNotAllowed(methodNotAllowedHandler)

	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/instances", s.handleInstances)
		r.Get("/instances/{id}", s.handleInstance)
		r.Get("/recipes", s.handleRecipes)
		r.Get("/recipes/{name}", s.handleRecipe)
		r.Get("/discovery", s.handleDiscovery)
		r.Get("/discovery/{service}", s.handleDiscoveryService)
	})

	return r
}

// recovery converts handler panics into the JSON 500 envelope.
func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panic",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, CodeInternal,
					fmt.Sprintf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
