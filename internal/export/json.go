// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package export

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// JSONStrategy renders records as a JSON array. Output is emitted
// incrementally: "[", comma-separated records, "]" without materializing
// the whole array.
type JSONStrategy struct{}

func (s *JSONStrategy) Name() string        { return "json" }
func (s *JSONStrategy) ContentType() string { return "application/json" }
func (s *JSONStrategy) Streaming() bool     { return true }

// Export implements Strategy. Zero records produce "[]".
func (s *JSONStrategy) Export(w io.Writer, source RecordSource, side *SideData) (int, error) {
	if _, err := io.WriteString(w, "["); err != nil {
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
		side.Inject(&rec)

		encoded, err := json.Marshal(rec)
		if err != nil {
			return count, fmt.Errorf("encoding record %d: %w", rec.ID, err)
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

	if _, err := io.WriteString(w, "]"); err != nil {
		return count, err
	}
	return count, nil
}
