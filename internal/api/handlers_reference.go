// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package api

import (
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/rtaormina/waterwatch/internal/auth"
	"github.com/rtaormina/waterwatch/internal/filter"
	"github.com/rtaormina/waterwatch/internal/models"
)

// ActiveCampaigns handles GET /campaigns/active. The at parameter defaults
// to the current time; lat and lon together narrow the result to campaigns
// whose region contains the point.
func (h *Handler) ActiveCampaigns(w http.ResponseWriter, r *http.Request) {
	at := h.now()
	if s := r.URL.Query().Get("at"); s != "" {
		parsed, err := parseDatetime(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid datetime: "+s)
			return
		}
		at = parsed
	}

	var lat, lon *float64
	latStr, lonStr := r.URL.Query().Get("lat"), r.URL.Query().Get("lon")
	if latStr != "" || lonStr != "" {
		latV, latErr := strconv.ParseFloat(latStr, 64)
		lonV, lonErr := strconv.ParseFloat(lonStr, 64)
		if latErr != nil || lonErr != nil {
			respondError(w, http.StatusBadRequest, "Invalid coordinate")
			return
		}
		lat, lon = &latV, &lonV
	}

	campaigns, err := h.db.ActiveCampaigns(r.Context(), at, lat, lon)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	if campaigns == nil {
		campaigns = []models.Campaign{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaigns": campaigns,
		"count":     len(campaigns),
	})
}

// parseDatetime accepts RFC 3339 timestamps and bare dates.
func parseDatetime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// Locations handles GET /locations: known countries grouped by continent,
// served from the geometry cache.
func (h *Handler) Locations(w http.ResponseWriter, r *http.Request) {
	geoms, err := h.geo.Geometries(r.Context())
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	grouped := make(map[string][]string, len(geoms.Mapping))
	for continent, countries := range geoms.Mapping {
		names := make([]string, 0, len(countries))
		for country := range countries {
			names = append(names, country)
		}
		sort.Strings(names)
		grouped[continent] = names
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"locations": grouped})
}

// ListPresets handles GET /presets: public presets plus the caller's own.
func (h *Handler) ListPresets(w http.ResponseWriter, r *http.Request) {
	var userID *int64
	if id := auth.IdentityFromContext(r.Context()); id != nil {
		userID = &id.UserID
	}

	presets, err := h.db.Presets(r.Context(), userID)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	if presets == nil {
		presets = []models.Preset{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"presets": presets,
		"count":   len(presets),
	})
}

type presetRequest struct {
	Name   string          `json:"name" validate:"required,max=120"`
	Public bool            `json:"public"`
	Params json.RawMessage `json:"params" validate:"required"`
}

// CreatePreset handles POST /presets. The caller must be authenticated;
// the preset's parameter bundle is validated as a filter request before
// saving so a saved preset always compiles.
func (h *Handler) CreatePreset(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	var req presetRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid preset: "+err.Error())
		return
	}

	params, err := filter.ParseParams(req.Params)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if _, err := h.pipeline.Compile(r.Context(), params); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid filter parameters: "+err.Error())
		return
	}

	presetID, err := h.db.SavePreset(r.Context(), models.Preset{
		Name:   req.Name,
		UserID: id.UserID,
		Public: req.Public,
		Params: string(req.Params),
	})
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"preset_id": presetID})
}

// DeletePreset handles DELETE /presets/{id}. Owners only; anything else
// reads as not found.
func (h *Handler) DeletePreset(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}

	presetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid preset ID")
		return
	}

	deleted, err := h.db.DeletePreset(r.Context(), presetID, id.UserID)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "Preset not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RebuildLocationCache handles POST /admin/location-cache/rebuild: drops
// and reloads the geometry cache and the reverse-geocode memo.
func (h *Handler) RebuildLocationCache(w http.ResponseWriter, r *http.Request) {
	if err := h.geo.Rebuild(r.Context()); err != nil {
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}

// Health handles GET /health: process liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.startTime).String(),
	})
}

// Ready handles GET /ready: readiness including database connectivity.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
