// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/rtaormina/waterwatch/internal/database"
	"github.com/rtaormina/waterwatch/internal/filter"
	"github.com/rtaormina/waterwatch/internal/models"
)

// maxBodyBytes bounds request bodies; filter parameter bundles and
// measurement payloads are small.
const maxBodyBytes = 1 << 20

// CreateMeasurement handles POST /measurements: validates the payload,
// persists it with its metric readings, and reports the new ID.
func (h *Handler) CreateMeasurement(w http.ResponseWriter, r *http.Request) {
	var in database.NewMeasurement
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := json.Unmarshal(body, &in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := h.validate.Struct(in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid measurement: "+err.Error())
		return
	}

	m, err := h.db.InsertMeasurement(r.Context(), in, h.now())
	if err != nil {
		if filter.IsValidationError(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondInternal(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]int64{"measurement_id": m.ID})
}

// ListMeasurements handles GET /measurements: a full export of every
// measurement, optionally clipped to a boundary_geometry WKT polygon, in
// the format selected by the format parameter.
func (h *Handler) ListMeasurements(w http.ResponseWriter, r *http.Request) {
	raw := map[string]interface{}{}
	if wkt := r.URL.Query().Get("boundary_geometry"); wkt != "" {
		raw["boundary_geometry"] = wkt
	}
	params := filter.FromMap(raw)

	compiled, err := h.pipeline.Compile(r.Context(), params)
	if err != nil {
		if errors.Is(err, filter.ErrInvalidBoundary) {
			respondError(w, http.StatusBadRequest, "Invalid boundary_geometry format")
			return
		}
		respondInternal(w, r, err)
		return
	}

	rows, err := h.matchedRows(r.Context(), compiled, params)
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	h.streamExport(w, r, r.URL.Query().Get("format"), rowIDs(rows))
}

// SearchMeasurements handles POST /measurements/search: the full filter
// pipeline over a JSON parameter bundle. Without a format it answers with
// the count and average temperature of the matched set; with a format it
// runs a role-gated export.
func (h *Handler) SearchMeasurements(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	params, err := filter.ParseParams(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = params.Format()
	}
	if format != "" && !h.callerMayExport(r) {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}

	compiled, err := h.pipeline.Compile(r.Context(), params)
	if err != nil {
		switch {
		case filter.IsValidationError(err):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, filter.ErrInvalidBoundary):
			respondError(w, http.StatusBadRequest, "Invalid boundary_geometry format")
		default:
			respondInternal(w, r, err)
		}
		return
	}

	rows, err := h.matchedRows(r.Context(), compiled, params)
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	if format != "" {
		h.streamExport(w, r, format, rowIDs(rows))
		return
	}

	count, avgTemp := summarize(rows)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   count,
		"avgTemp": avgTemp,
	})
}

// AggregatedMeasurements handles GET /measurements/aggregated: temperature
// statistics grouped by (country, continent, month). The months query
// parameter follows the month filter contract, including the 0 sentinel
// for the trailing 30 days.
func (h *Handler) AggregatedMeasurements(w http.ResponseWriter, r *http.Request) {
	raw := map[string]interface{}{}
	if monthsCSV := r.URL.Query().Get("months"); monthsCSV != "" {
		months, err := filter.ParseMonthsCSV(monthsCSV)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		raw["months"] = intsToInterfaces(months)
	}
	if wkt := r.URL.Query().Get("boundary_geometry"); wkt != "" {
		raw["boundary_geometry"] = wkt
	}
	params := filter.FromMap(raw)

	compiled, err := h.pipeline.Compile(r.Context(), params)
	if err != nil {
		switch {
		case filter.IsValidationError(err):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, filter.ErrInvalidBoundary):
			respondError(w, http.StatusBadRequest, "Invalid boundary_geometry format")
		default:
			respondInternal(w, r, err)
		}
		return
	}

	rows, err := h.matchedRows(r.Context(), compiled, params)
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	groups, err := h.aggregate(r.Context(), rows)
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"measurements": groups,
		"count":        len(groups),
		"status":       "success",
	})
}

// MeasurementPage handles GET /measurements/recent: a paginated JSON list
// for browsing, separate from the export surface.
func (h *Handler) MeasurementPage(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	measurements, err := h.db.ListMeasurements(r.Context(), limit, offset)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	if measurements == nil {
		measurements = []models.Measurement{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"measurements": measurements,
		"count":        len(measurements),
	})
}

func intsToInterfaces(values []int) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
