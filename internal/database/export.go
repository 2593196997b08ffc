// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rtaormina/waterwatch/internal/export"
	"github.com/rtaormina/waterwatch/internal/metrics"
	"github.com/rtaormina/waterwatch/internal/models"
)

// exportBatchSize bounds how many measurements are materialized per fetch
// while streaming an export. Side tables are fetched per batch.
const exportBatchSize = 500

// MetricReadings returns all metric readings attached to each of the given
// measurement IDs, across every registered metric table.
func (db *DB) MetricReadings(ctx context.Context, measurementIDs []int64) (map[int64][]models.MetricReading, error) {
	out := make(map[int64][]models.MetricReading, len(measurementIDs))
	if len(measurementIDs) == 0 {
		return out, nil
	}

	for _, def := range models.RegisteredMetrics() {
		query := fmt.Sprintf(`
			SELECT measurement_id, sensor, value, time_waited
			FROM %s WHERE measurement_id IN (%s)
			ORDER BY measurement_id, id`, def.Table, idPlaceholders(len(measurementIDs)))

		rows, err := db.conn.QueryContext(ctx, query, idArgs(measurementIDs)...)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s readings: %w", def.Name, err)
		}
		for rows.Next() {
			var (
				id int64
				r  models.MetricReading
			)
			if err := rows.Scan(&id, &r.Sensor, &r.Value, &r.TimeWaited); err != nil {
				closeQuietly(rows)
				return nil, fmt.Errorf("failed to scan %s reading: %w", def.Name, err)
			}
			r.MetricType = def.Name
			out[id] = append(out[id], r)
		}
		err = rows.Err()
		closeQuietly(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to iterate %s readings: %w", def.Name, err)
		}
	}
	return out, nil
}

// exportSource streams flattened export records for a fixed ID set,
// fetching measurements and their side tables in batches so an arbitrarily
// large export never materializes fully in memory.
type exportSource struct {
	db  *DB
	ctx context.Context
	ids []int64

	pos    int
	buf    []models.ExportRecord
	bufPos int
}

// ExportSource returns a streaming record source over the given measurement
// IDs. Records carry coordinates, metric readings, and campaign names;
// country and continent are left for the caller to resolve.
func (db *DB) ExportSource(ctx context.Context, ids []int64) export.RecordSource {
	return &exportSource{db: db, ctx: ctx, ids: ids}
}

func (s *exportSource) Next() (models.ExportRecord, bool, error) {
	if s.bufPos >= len(s.buf) {
		if err := s.fill(); err != nil {
			return models.ExportRecord{}, false, err
		}
		if len(s.buf) == 0 {
			return models.ExportRecord{}, false, nil
		}
	}
	rec := s.buf[s.bufPos]
	s.bufPos++
	return rec, true, nil
}

func (s *exportSource) Close() error {
	s.buf = nil
	s.pos = len(s.ids)
	return nil
}

func (s *exportSource) fill() error {
	s.buf = nil
	s.bufPos = 0
	if s.pos >= len(s.ids) {
		return nil
	}

	end := s.pos + exportBatchSize
	if end > len(s.ids) {
		end = len(s.ids)
	}
	batch := s.ids[s.pos:end]
	s.pos = end

	query := fmt.Sprintf(`
		SELECT id, latitude, longitude, timestamp, local_date, local_time, flag, water_source, user_id
		FROM measurements WHERE id IN (%s) ORDER BY id`, idPlaceholders(len(batch)))

	start := time.Now()
	rows, err := s.db.conn.QueryContext(s.ctx, query, idArgs(batch)...)
	metrics.RecordDBQuery("select", "measurements", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to query export batch: %w", err)
	}

	records := make([]models.ExportRecord, 0, len(batch))
	for rows.Next() {
		var (
			rec      models.ExportRecord
			lat, lon float64
		)
		if err := rows.Scan(&rec.ID, &lat, &lon, &rec.Timestamp,
			&rec.LocalDate, &rec.LocalTime, &rec.Flag, &rec.WaterSource, &rec.UserID); err != nil {
			closeQuietly(rows)
			return fmt.Errorf("failed to scan export row: %w", err)
		}
		rec.Latitude = &lat
		rec.Longitude = &lon
		records = append(records, rec)
	}
	err = rows.Err()
	closeQuietly(rows)
	if err != nil {
		return fmt.Errorf("failed to iterate export batch: %w", err)
	}

	readings, err := s.db.MetricReadings(s.ctx, batch)
	if err != nil {
		return err
	}
	campaigns, err := s.db.CampaignNames(s.ctx, batch)
	if err != nil {
		return err
	}
	side := &export.SideData{Metrics: readings, Campaigns: campaigns}
	for i := range records {
		side.Inject(&records[i])
	}

	s.buf = records
	return nil
}
