// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

// Package api wires the HTTP surface: routing, request decoding, response
// encoding, and the glue between the filter pipeline, geometry service,
// result cache, and export strategies.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/rtaormina/waterwatch/internal/auth"
	"github.com/rtaormina/waterwatch/internal/cache"
	"github.com/rtaormina/waterwatch/internal/config"
	"github.com/rtaormina/waterwatch/internal/database"
	"github.com/rtaormina/waterwatch/internal/filter"
	"github.com/rtaormina/waterwatch/internal/geo"
	"github.com/rtaormina/waterwatch/internal/logging"
)

// Handler holds the wired dependencies behind every route.
type Handler struct {
	cfg        *config.Config
	db         *database.DB
	geo        *geo.Service
	pipeline   *filter.Pipeline
	results    *cache.Cache
	jwtManager *auth.JWTManager
	validate   *validator.Validate
	exportSem  chan struct{}
	startTime  time.Time

	// now is swappable in tests; everything time-sensitive flows through it.
	now func() time.Time
}

// NewHandler wires the API handler. jwtManager may be nil when auth mode
// is "none". Measurement writes clear the result cache.
func NewHandler(cfg *config.Config, db *database.DB, geoService *geo.Service,
	results *cache.Cache, jwtManager *auth.JWTManager) *Handler {

	streams := cfg.Export.MaxConcurrentStreams
	if streams <= 0 {
		streams = 1
	}

	h := &Handler{
		cfg:        cfg,
		db:         db,
		geo:        geoService,
		pipeline:   filter.NewPipeline(geoService),
		results:    results,
		jwtManager: jwtManager,
		validate:   validator.New(),
		exportSem:  make(chan struct{}, streams),
		startTime:  time.Now(),
		now:        time.Now,
	}

	db.OnWrite(func() {
		results.Clear()
	})

	return h
}

// callerMayExport reports whether the request identity holds one of the
// configured export roles. Anonymous callers never may.
func (h *Handler) callerMayExport(r *http.Request) bool {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		return false
	}
	for _, role := range h.cfg.Security.ExportRoles {
		if strings.EqualFold(id.Role, role) {
			return true
		}
	}
	return false
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondInternal logs the real error and returns the generic body so
// internals never leak to clients.
func respondInternal(w http.ResponseWriter, r *http.Request, err error) {
	logging.Ctx(r.Context()).Error().Err(err).Msg("Request failed")
	respondError(w, http.StatusInternalServerError, "Internal server error")
}
