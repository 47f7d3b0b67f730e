// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/insiderwatch/internal/config"
	"github.com/tomtom215/insiderwatch/internal/middleware"
	"github.com/tomtom215/insiderwatch/internal/models"
)

// RouterConfig holds CORS and rate limiting settings.
type RouterConfig struct {
	CORSOrigins []string
	// RateLimitRequests per RateLimitWindow per client IP; 0 disables limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// RouterConfigFrom builds a RouterConfig from the security section.
func RouterConfigFrom(cfg *config.SecurityConfig) RouterConfig {
	return RouterConfig{
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	}
}

// NewRouter wires every route onto a chi router.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         86400,
	}))
	r.Use(middleware.PrometheusMetrics)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(httprate.Limit(cfg.RateLimitRequests, cfg.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(rateLimited)))
		}

		r.Post("/events", h.CreateEvent)

		r.Get("/alerts", h.ListAlerts)
		r.Get("/alerts/{id}", h.GetAlert)
		r.Patch("/alerts/{id}/clear", h.ClearAlert)

		r.Get("/access/resolve", h.ResolveAccess)
		r.Post("/access/authorize", h.Authorize)

		r.Put("/subjects/{id}", h.PutSubject)
		r.Put("/resources/{id}", h.PutResource)
		r.Get("/grants", h.ListGrants)
		r.Put("/grants", h.PutGrant)
		r.Delete("/grants", h.DeleteGrant)

		r.Get("/ws", h.WebSocket)
	})

	return r
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, http.StatusTooManyRequests, &models.APIError{
		Code:    "RATE_LIMITED",
		Message: "too many requests",
	})
}
