// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package export

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/rtaormina/waterwatch/internal/models"
)

// GeoJSONStrategy renders records as a FeatureCollection. Each record
// becomes a Point feature with coordinates [longitude, latitude] and all
// non-coordinate fields under properties. Records missing either
// coordinate are silently dropped, so the feature count may be lower than
// the record count.
type GeoJSONStrategy struct{}

func (s *GeoJSONStrategy) Name() string        { return "geojson" }
func (s *GeoJSONStrategy) ContentType() string { return "application/geo+json" }
func (s *GeoJSONStrategy) Streaming() bool     { return true }

type geoJSONGeometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

type geoJSONFeature struct {
	Type       string                 `json:"type"`
	Geometry   geoJSONGeometry        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// Export implements Strategy. Zero features produce an empty
// FeatureCollection.
func (s *GeoJSONStrategy) Export(w io.Writer, source RecordSource, side *SideData) (int, error) {
	if _, err := io.WriteString(w, `{"type":"FeatureCollection","features":[`); err != nil {
		return 0, err
	}

	count := 0
	for {
		rec, ok, err := source.Next()
		if err != nil {
			return count, fmt.Errorf("reading export record: %w", err)
		}
		if !ok {
			break
		}
		if rec.Longitude == nil || rec.Latitude == nil {
			continue
		}
		side.Inject(&rec)

		feature := geoJSONFeature{
			Type: "Feature",
			Geometry: geoJSONGeometry{
				Type:        "Point",
				Coordinates: []float64{*rec.Longitude, *rec.Latitude},
			},
			Properties: featureProperties(rec),
		}
		encoded, err := json.Marshal(feature)
		if err != nil {
			return count, fmt.Errorf("encoding feature %d: %w", rec.ID, err)
		}
		if count > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return count, err
			}
		}
		if _, err := w.Write(encoded); err != nil {
			return count, err
		}
		count++
	}

	if _, err := io.WriteString(w, "]}"); err != nil {
		return count, err
	}
	return count, nil
}

func featureProperties(rec models.ExportRecord) map[string]interface{} {
	return map[string]interface{}{
		"id":           rec.ID,
		"timestamp":    rec.Timestamp,
		"local_date":   rec.LocalDate,
		"local_time":   rec.LocalTime,
		"flag":         rec.Flag,
		"water_source": rec.WaterSource,
		"user_id":      rec.UserID,
		"country":      rec.Country,
		"continent":    rec.Continent,
		"metrics":      rec.Metrics,
		"campaigns":    rec.Campaigns,
	}
}
