// Package web wires the HTTP API: request submission, face-scan login, and
// the return-confirmation pipeline endpoints.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/daro-kh/leavegate/internal/config"
	"github.com/daro-kh/leavegate/internal/confirm"
	"github.com/daro-kh/leavegate/internal/metrics"
	"github.com/daro-kh/leavegate/internal/notify"
	"github.com/daro-kh/leavegate/internal/scan"
	"github.com/daro-kh/leavegate/internal/store"
	"github.com/daro-kh/leavegate/internal/web/handlers"
	"github.com/daro-kh/leavegate/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Deps are the collaborators the server exposes over HTTP.
type Deps struct {
	Store         store.RequestStore
	Orchestrator  *confirm.Orchestrator
	Registry      *scan.Registry
	Descriptors   handlers.DescriptorCache
	Matcher       scan.Matcher
	Notifier      notify.Notifier
	Metrics       *metrics.Collector
	SessionSecret string
}

// Server represents the web server.
type Server struct {
	config         *config.Config
	deps           Deps
	router         *chi.Mux
	httpServer     *http.Server
	attemptManager *handlers.AttemptManager
	sessionManager *middleware.SessionManager

	// baseCtx outlives requests; scans and attempts run on it.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewServer creates a new web server.
func NewServer(cfg *config.Config, port int, host string, deps Deps) *Server {
	r := chi.NewRouter()

	baseCtx, cancelBase := context.WithCancel(context.Background())

	s := &Server{
		config:         cfg,
		deps:           deps,
		router:         r,
		attemptManager: handlers.NewAttemptManager(),
		sessionManager: middleware.NewSessionManager(deps.SessionSecret),
		baseCtx:        baseCtx,
		cancelBase:     cancelBase,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long timeout for SSE
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server. Running scans are cancelled so
// cameras release before the process exits.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")

	s.cancelBase()
	if s.deps.Registry != nil {
		s.deps.Registry.Cancel(scan.ChannelLogin)
		s.deps.Registry.Cancel(scan.ChannelReturn)
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
