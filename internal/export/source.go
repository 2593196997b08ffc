// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

// Package export renders flattened measurement records into the supported
// wire formats (CSV, JSON, GeoJSON, XML) with side-loaded metrics and
// campaigns injected into every record.
package export

import "github.com/rtaormina/waterwatch/internal/models"

// RecordSource is a pull iterator over export records. Streaming
// strategies consume it row by row so large exports never materialize in
// memory; database-backed sources hold their cursor open until Close.
type RecordSource interface {
	// Next returns the next record. ok is false when the source is
	// exhausted.
	Next() (rec models.ExportRecord, ok bool, err error)
	Close() error
}

// SliceSource adapts an in-memory record slice to RecordSource.
type SliceSource struct {
	records []models.ExportRecord
	pos     int
}

// NewSliceSource creates a RecordSource over records.
func NewSliceSource(records []models.ExportRecord) *SliceSource {
	return &SliceSource{records: records}
}

// Next implements RecordSource.
func (s *SliceSource) Next() (models.ExportRecord, bool, error) {
	if s.pos >= len(s.records) {
		return models.ExportRecord{}, false, nil
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, true, nil
}

// Close implements RecordSource.
func (s *SliceSource) Close() error { return nil }

// SideData maps record IDs to their side-loaded metrics and campaign
// names. Either map may be nil.
type SideData struct {
	Metrics   map[int64][]models.MetricReading
	Campaigns map[int64][]string
}

// Inject fills a record's Metrics and Campaigns from the side tables. A
// nil receiver leaves pre-populated fields alone, so sources that batch
// their own side lookups compose with strategies that inject per record.
// Absent entries become empty (never nil) lists so every encoded record
// carries both fields.
func (s *SideData) Inject(rec *models.ExportRecord) {
	if s != nil {
		rec.Metrics = s.Metrics[rec.ID]
		rec.Campaigns = s.Campaigns[rec.ID]
	}
	if rec.Metrics == nil {
		rec.Metrics = []models.MetricReading{}
	}
	if rec.Campaigns == nil {
		rec.Campaigns = []string{}
	}
}
