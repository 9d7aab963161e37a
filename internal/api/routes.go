package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds the cross-cutting HTTP settings.
type RouterConfig struct {
	AllowedOrigins    []string
	RequestsPerMinute int
}

// TrackingRoutes mounts the pixel and redirect endpoints.
type TrackingRoutes interface {
	Register(r chi.Router)
}

// SetupRoutes configures all routes. tracking may be nil when the edge runs
// as its own process.
func SetupRoutes(h *Handlers, hc *HealthChecker, tracking TrackingRoutes, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", hc.HandleHealth)
	r.Get("/health/live", hc.HandleLiveness)
	r.Get("/health/ready", hc.HandleReadiness)
	r.Handle("/metrics", promhttp.Handler())

	if tracking != nil {
		tracking.Register(r)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		if cfg.RequestsPerMinute > 0 {
			r.Use(httprate.LimitByIP(cfg.RequestsPerMinute, time.Minute))
		}
		r.Use(middleware.AllowContentType("application/json"))

		r.Get("/campaigns/{campaignId}/analytics", h.GetCampaignAnalytics)

		r.Post("/surveys/responses", h.SubmitSurveyResponse)
		r.Get("/surveys/responses", h.ListSurveyResponses)

		r.Post("/emails", h.RegisterEmail)
		r.Get("/emails/{id}", h.GetEmail)
		r.Patch("/emails/{id}/status", h.UpdateEmailStatus)

		r.Get("/reconciliation/latest", h.GetLatestReconciliation)
	})
	return r
}
