package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facegate/internal/web/handlers"
	"github.com/kozaktomas/facegate/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	statsHandler := handlers.NewStatsHandler(s.engine, s.log)
	profilesHandler := handlers.NewProfilesHandler(s.config, s.engine, statsHandler, s.log)
	recognizeHandler := handlers.NewRecognizeHandler(s.config, s.engine, s.log)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAPIKey(s.config.Server.APIKey))

			r.Get("/stats", statsHandler.Get)

			// Profiles
			r.Get("/profiles", profilesHandler.List)
			r.Put("/profiles/{identity}", profilesHandler.Enroll)
			r.Delete("/profiles/{identity}", profilesHandler.Delete)
			r.Post("/profiles/{identity}/verify", profilesHandler.Verify)

			// Recognition
			r.Post("/recognize", recognizeHandler.Recognize)
		})
	})
}
