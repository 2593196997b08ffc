// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rtaormina/waterwatch/internal/auth"
	"github.com/rtaormina/waterwatch/internal/middleware"
)

// Router builds the HTTP route tree around a wired Handler.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	exportRoles := h.cfg.Security.ExportRoles

	r.Route("/api/v1", func(r chi.Router) {
		if !h.cfg.Security.RateLimitDisabled {
			r.Use(httprate.LimitByIP(h.cfg.Security.RateLimitReqs, h.cfg.Security.RateLimitWindow))
		}
		r.Use(middleware.PrometheusMetrics)
		r.Use(auth.Middleware(h.jwtManager))

		r.Route("/measurements", func(r chi.Router) {
			r.Post("/", h.CreateMeasurement)
			r.With(auth.RequireRole(exportRoles...)).Get("/", h.ListMeasurements)
			r.Get("/recent", h.MeasurementPage)
			r.Post("/search", h.SearchMeasurements)
			r.Get("/aggregated", h.AggregatedMeasurements)
		})

		r.Get("/campaigns/active", h.ActiveCampaigns)
		r.Get("/locations", h.Locations)

		r.Route("/presets", func(r chi.Router) {
			r.Get("/", h.ListPresets)
			r.Post("/", h.CreatePreset)
			r.Delete("/{id}", h.DeletePreset)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))
			r.Post("/location-cache/rebuild", h.RebuildLocationCache)
		})
	})

	return r
}
