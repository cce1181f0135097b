// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keepstack/keepstack/internal/auth"
	"github.com/keepstack/keepstack/internal/config"
	"github.com/keepstack/keepstack/internal/middleware"
)

// Router assembles the full HTTP surface.
type Router struct {
	handler *Handler
	health  *HealthChecker
	authMW  *auth.Middleware
	cfg     *config.SecurityConfig
}

// NewRouter wires the router.
func NewRouter(handler *Handler, health *HealthChecker, authMW *auth.Middleware, cfg *config.SecurityConfig) *Router {
	return &Router{handler: handler, health: health, authMW: authMW, cfg: cfg}
}

// Setup builds the route tree. Auth endpoints get a stricter rate limit than
// the data plane; health and metrics stay outside both auth and limits.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", rt.health.Health)
	r.Get("/health/live", rt.health.Live)
	r.Get("/health/ready", rt.health.Ready)
	// Short aliases for probe configs that expect top-level paths.
	r.Get("/live", rt.health.Live)
	r.Get("/ready", rt.health.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Prometheus)

		r.Route("/auth", func(r chi.Router) {
			// Brute-force protection: a tight per-IP budget on credentials.
			r.Use(httprate.LimitByIP(10, time.Minute))
			r.Post("/register", rt.handler.Register)
			r.Post("/login", rt.handler.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(rt.cfg.RateLimitReqs, rt.cfg.RateLimitWindow))
			r.Use(rt.authMW.RequireAuth)

			r.Route("/items", func(r chi.Router) {
				r.Post("/", rt.handler.CreateItem)
				r.Get("/", rt.handler.ListItems)
				r.Get("/categories", rt.handler.CategoryCounts)
				r.Route("/{itemID}", func(r chi.Router) {
					r.Get("/", rt.handler.GetItem)
					r.Patch("/", rt.handler.UpdateItem)
					r.Delete("/", rt.handler.DeleteItem)
					r.Post("/favorite", rt.handler.FavoriteItem)
					r.Post("/archive", rt.handler.ArchiveItem)
					r.Get("/similar", rt.handler.SimilarItems)
				})
			})

			r.Route("/clusters", func(r chi.Router) {
				r.Get("/", rt.handler.ListClusters)
				r.Post("/recluster", rt.handler.Recluster)
				r.Route("/{clusterID}", func(r chi.Router) {
					r.Get("/", rt.handler.GetCluster)
					r.Delete("/", rt.handler.DeleteCluster)
				})
			})
		})
	})

	return r
}
