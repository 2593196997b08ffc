// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rtaormina/waterwatch/internal/export"
	"github.com/rtaormina/waterwatch/internal/geo"
	"github.com/rtaormina/waterwatch/internal/logging"
	"github.com/rtaormina/waterwatch/internal/metrics"
	"github.com/rtaormina/waterwatch/internal/models"
)

// geocodeSource decorates a record source with reverse-geocoded country
// and continent, resolved through the memoized geometry service.
type geocodeSource struct {
	inner export.RecordSource
	geo   *geo.Service
	ctx   context.Context
}

func (s *geocodeSource) Next() (models.ExportRecord, bool, error) {
	rec, ok, err := s.inner.Next()
	if err != nil || !ok {
		return rec, ok, err
	}
	if rec.Latitude != nil && rec.Longitude != nil {
		loc, err := s.geo.Lookup(s.ctx, *rec.Latitude, *rec.Longitude)
		if err != nil {
			return models.ExportRecord{}, false, err
		}
		rec.Country = loc.Country
		rec.Continent = loc.Continent
	}
	return rec, true, nil
}

func (s *geocodeSource) Close() error { return s.inner.Close() }

// streamExport renders the measurements with the given IDs in the
// requested format. Concurrent exports are bounded by a semaphore sized
// from configuration; waiting respects request cancellation. Once the
// first byte is written the status code is committed, so mid-stream
// failures can only be logged and the connection dropped.
func (h *Handler) streamExport(w http.ResponseWriter, r *http.Request, format string, ids []int64) {
	select {
	case h.exportSem <- struct{}{}:
		defer func() { <-h.exportSem }()
	case <-r.Context().Done():
		respondError(w, http.StatusServiceUnavailable, "Export capacity exhausted")
		return
	}

	metrics.ExportStreamsActive.Inc()
	defer metrics.ExportStreamsActive.Dec()

	strategy := export.ForFormat(format)
	mode := "buffered"
	if strategy.Streaming() {
		mode = "streaming"
	}

	source := &geocodeSource{
		inner: h.db.ExportSource(r.Context(), ids),
		geo:   h.geo,
		ctx:   r.Context(),
	}
	defer func() {
		if err := source.Close(); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("Failed to close export source")
		}
	}()

	w.Header().Set("Content-Type", strategy.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=measurements.%s", strategy.Name()))

	start := time.Now()
	count, err := strategy.Export(w, source, nil)
	if err != nil {
		// Headers are already committed; the client sees a truncated body.
		logging.Ctx(r.Context()).Error().Err(err).
			Str("format", strategy.Name()).
			Int("records_written", count).
			Msg("Export aborted mid-stream")
		return
	}

	metrics.RecordExport(strategy.Name(), mode, count, time.Since(start))
}
