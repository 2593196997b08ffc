// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

// XMLStrategy renders records as a <measurements> document with one
// <measurement> child per record. Output is always fully buffered and
// pretty-printed: indentation needs the whole tree, so there is no
// streaming variant.
type XMLStrategy struct{}

func (s *XMLStrategy) Name() string        { return "xml" }
func (s *XMLStrategy) ContentType() string { return "application/xml" }
func (s *XMLStrategy) Streaming() bool     { return false }

type xmlMetric struct {
	MetricType string  `xml:"metric_type"`
	Sensor     string  `xml:"sensor"`
	Value      float64 `xml:"value"`
	TimeWaited float64 `xml:"time_waited"`
}

type xmlMeasurement struct {
	ID          int64       `xml:"id"`
	Timestamp   string      `xml:"timestamp"`
	LocalDate   string      `xml:"local_date"`
	LocalTime   string      `xml:"local_time"`
	Flag        bool        `xml:"flag"`
	WaterSource string      `xml:"water_source"`
	UserID      *int64      `xml:"user_id,omitempty"`
	Country     *string     `xml:"country,omitempty"`
	Continent   *string     `xml:"continent,omitempty"`
	Latitude    *float64    `xml:"latitude,omitempty"`
	Longitude   *float64    `xml:"longitude,omitempty"`
	Metrics     []xmlMetric `xml:"metrics>metric"`
	Campaigns   []string    `xml:"campaigns>campaign"`
}

type xmlMeasurements struct {
	XMLName xml.Name         `xml:"measurements"`
	Items   []xmlMeasurement `xml:"measurement"`
}

// Export implements Strategy. Zero records produce "<measurements/>".
func (s *XMLStrategy) Export(w io.Writer, source RecordSource, side *SideData) (int, error) {
	doc := xmlMeasurements{}

	for {
		rec, ok, err := source.Next()
		if err != nil {
			return len(doc.Items), fmt.Errorf("reading export record: %w", err)
		}
		if !ok {
			break
		}
		side.Inject(&rec)

		item := xmlMeasurement{
			ID:          rec.ID,
			Timestamp:   rec.Timestamp.UTC().Format(time.RFC3339),
			LocalDate:   rec.LocalDate,
			LocalTime:   rec.LocalTime,
			Flag:        rec.Flag,
			WaterSource: rec.WaterSource,
			UserID:      rec.UserID,
			Country:     rec.Country,
			Continent:   rec.Continent,
			Latitude:    rec.Latitude,
			Longitude:   rec.Longitude,
			Campaigns:   rec.Campaigns,
		}
		for _, m := range rec.Metrics {
			item.Metrics = append(item.Metrics, xmlMetric(m))
		}
		doc.Items = append(doc.Items, item)
	}

	if len(doc.Items) == 0 {
		_, err := io.WriteString(w, "<measurements/>\n")
		return 0, err
	}

	encoded, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return len(doc.Items), fmt.Errorf("encoding XML document: %w", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return len(doc.Items), err
	}
	_, err = io.WriteString(w, "\n")
	return len(doc.Items), err
}
