package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/phrazzld/lexis-api/internal/api"
	apiMiddleware "github.com/phrazzld/lexis-api/internal/api/middleware"
	"github.com/phrazzld/lexis-api/internal/service"
	"github.com/phrazzld/lexis-api/internal/service/auth"
	"github.com/phrazzld/lexis-api/internal/service/review"
)

// routerDeps are the services the HTTP surface needs.
type routerDeps struct {
	jwt         auth.JWTService
	generation  service.GenerationService
	quota       api.QuotaReader
	reviews     review.Service
	monitor     api.Monitor
	terms       service.TermService
	metrics     http.Handler
	corsOrigins []string
	logger      *slog.Logger
}

func (app *application) setupRouter() http.Handler {
	return newRouter(routerDeps{
		jwt:         app.jwtService,
		generation:  app.generation,
		quota:       app.governor,
		reviews:     app.reviews,
		monitor:     app.monitor,
		terms:       app.terms,
		metrics:     app.metrics.Handler(),
		corsOrigins: app.config.Server.CORSAllowedOrigins,
		logger:      app.logger,
	})
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(d.logger))
	if len(d.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	authMiddleware := apiMiddleware.NewAuthMiddleware(d.jwt)
	generationHandler := api.NewGenerationHandler(d.generation, d.quota, d.logger)
	reviewHandler := api.NewReviewHandler(d.reviews, d.logger)
	realtimeHandler := api.NewRealtimeHandler(d.monitor, d.logger)
	termHandler := api.NewTermHandler(d.terms, d.logger)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/generate", generationHandler.Generate)
			r.Get("/quota/{userId}", generationHandler.GetQuota)

			r.Get("/terms/{id}/related", termHandler.Related)
			r.Get("/terms/{id}/tags", termHandler.Tags)
			r.Get("/tags", termHandler.ListTags)
			r.Get("/graph/stats", termHandler.GraphStats)

			// Moderation
			r.Group(func(r chi.Router) {
				r.Use(apiMiddleware.RequireModerator)

				r.Get("/review", reviewHandler.List)
				r.Post("/review/bulk", reviewHandler.Bulk)
				r.Post("/review/{id}", reviewHandler.Decide)

				r.Post("/realtime/start", realtimeHandler.Start)
				r.Post("/realtime/stop", realtimeHandler.Stop)
				r.Get("/realtime/status", realtimeHandler.Status)
			})
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			d.logger.Error("Failed to write health check response", "error", err)
		}
	})
	r.Handle("/metrics", d.metrics)

	return r
}
