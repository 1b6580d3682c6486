package web

import (
	"github.com/daro-kh/leavegate/internal/web/handlers"
	"github.com/daro-kh/leavegate/internal/web/middleware"
	"github.com/go-chi/chi/v5"
)

func (s *Server) setupRoutes() {
	authHandler := handlers.NewAuthHandler(s.baseCtx, s.deps.Registry, s.deps.Descriptors,
		s.deps.Matcher, s.sessionManager, s.config.Scan.PollInterval)
	requestsHandler := handlers.NewRequestsHandler(s.deps.Store, s.deps.Notifier)
	returnsHandler := handlers.NewReturnsHandler(s.baseCtx, s.deps.Orchestrator, s.attemptManager)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		// Face-scan login does not carry a session yet.
		r.Post("/auth/scan", authHandler.StartScan)
		r.Post("/auth/scan/frame", authHandler.Frame)
		r.Post("/auth/scan/camera/deny", authHandler.DenyCamera)
		r.Get("/auth/scan/events", authHandler.ScanEvents)
		r.Delete("/auth/scan", authHandler.CancelScan)
		r.Post("/auth/scan/complete", authHandler.CompleteScan)
		r.Get("/auth/status", authHandler.Status)
		r.Post("/auth/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.sessionManager))

			// Leave and out requests
			r.Post("/requests/leave", requestsHandler.CreateLeave)
			r.Get("/requests/leave", requestsHandler.ListLeave)
			r.Post("/requests/out", requestsHandler.CreateOut)
			r.Get("/requests/out", requestsHandler.ListOut)
			r.Get("/requests/out/{id}", requestsHandler.GetOut)

			// Return confirmation pipeline
			r.Post("/requests/out/{id}/return", returnsHandler.Start)
			r.Get("/returns/{attemptId}", returnsHandler.Status)
			r.Get("/returns/{attemptId}/events", returnsHandler.Events)
			r.Delete("/returns/{attemptId}", returnsHandler.Cancel)
			r.Post("/returns/{attemptId}/frame", returnsHandler.Frame)
			r.Post("/returns/{attemptId}/camera/deny", returnsHandler.DenyCamera)
			r.Post("/returns/{attemptId}/location", returnsHandler.Location)
			r.Post("/returns/{attemptId}/location/deny", returnsHandler.DenyLocation)
			r.Post("/returns/{attemptId}/location/unsupported", returnsHandler.LocationUnsupported)
		})
	})
}
