// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/rtaormina/waterwatch/internal/models"
)

// CSVStrategy renders records as CSV. The first row is the header from the
// canonical field order; list-valued cells (metrics, campaigns) are
// JSON-encoded into a single cell. Rows are written incrementally from the
// cursor.
type CSVStrategy struct{}

func (s *CSVStrategy) Name() string        { return "csv" }
func (s *CSVStrategy) ContentType() string { return "text/csv" }
func (s *CSVStrategy) Streaming() bool     { return true }

// Export implements Strategy. Zero records produce a headerless empty body.
func (s *CSVStrategy) Export(w io.Writer, source RecordSource, side *SideData) (int, error) {
	writer := csv.NewWriter(w)
	count := 0

	for {
		rec, ok, err := source.Next()
		if err != nil {
			return count, fmt.Errorf("reading export record: %w", err)
		}
		if !ok {
			break
		}
		side.Inject(&rec)

		if count == 0 {
			if err := writer.Write(models.ExportFieldOrder); err != nil {
				return count, err
			}
		}

		row, err := csvRow(rec)
		if err != nil {
			return count, fmt.Errorf("encoding record %d: %w", rec.ID, err)
		}
		if err := writer.Write(row); err != nil {
			return count, err
		}
		count++

		// Flush per row so streamed responses make progress.
		writer.Flush()
		if err := writer.Error(); err != nil {
			return count, err
		}
	}

	writer.Flush()
	return count, writer.Error()
}

func csvRow(rec models.ExportRecord) ([]string, error) {
	metrics, err := json.Marshal(rec.Metrics)
	if err != nil {
		return nil, err
	}
	campaigns, err := json.Marshal(rec.Campaigns)
	if err != nil {
		return nil, err
	}

	return []string{
		strconv.FormatInt(rec.ID, 10),
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.LocalDate,
		rec.LocalTime,
		strconv.FormatBool(rec.Flag),
		rec.WaterSource,
		formatNullableInt(rec.UserID),
		formatNullableString(rec.Country),
		formatNullableString(rec.Continent),
		formatNullableFloat(rec.Latitude),
		formatNullableFloat(rec.Longitude),
		string(metrics),
		string(campaigns),
	}, nil
}

func formatNullableInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatNullableString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatNullableFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
