// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rtaormina/waterwatch/internal/filter"
	"github.com/rtaormina/waterwatch/internal/geo"
	"github.com/rtaormina/waterwatch/internal/logging"
	"github.com/rtaormina/waterwatch/internal/metrics"
	"github.com/rtaormina/waterwatch/internal/models"
)

// MetricInput is one metric reading submitted with a new measurement.
type MetricInput struct {
	Metric     string  `json:"metric" validate:"required"`
	Sensor     string  `json:"sensor"`
	Value      float64 `json:"value"`
	TimeWaited float64 `json:"time_waited" validate:"gte=0"`
}

// NewMeasurement is the payload for creating a measurement.
type NewMeasurement struct {
	Latitude    float64       `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude   float64       `json:"longitude" validate:"gte=-180,lte=180"`
	LocalDate   string        `json:"local_date" validate:"required,datetime=2006-01-02"`
	LocalTime   string        `json:"local_time" validate:"required"`
	WaterSource string        `json:"water_source" validate:"required"`
	UserID      *int64        `json:"user_id"`
	Readings    []MetricInput `json:"readings" validate:"min=1,dive"`
}

// InsertMeasurement validates and persists a measurement with its metric
// readings, flags it when any reading exceeds its metric's alert threshold,
// and associates it with every campaign whose time window and region contain
// it. The capture timestamp is server-assigned from now.
func (db *DB) InsertMeasurement(ctx context.Context, in NewMeasurement, now time.Time) (*models.Measurement, error) {
	source := models.NormalizeWaterSource(in.WaterSource)
	if !models.IsValidWaterSource(source) {
		return nil, filter.NewValidationError(fmt.Sprintf("unknown water source %q", in.WaterSource))
	}

	flag := false
	for _, r := range in.Readings {
		def, ok := models.MetricByName(r.Metric)
		if !ok {
			return nil, filter.NewValidationError(fmt.Sprintf("unknown metric %q", r.Metric))
		}
		if err := def.Validate(r.Value); err != nil {
			return nil, filter.NewValidationError(err.Error())
		}
		if def.Flags(r.Value) {
			flag = true
		}
	}

	start := time.Now()
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO measurements (latitude, longitude, timestamp, local_date, local_time, flag, water_source, user_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		in.Latitude, in.Longitude, now.UTC(), in.LocalDate, in.LocalTime, flag, source, in.UserID,
	).Scan(&id)
	if err != nil {
		metrics.RecordDBQuery("insert", "measurements", time.Since(start), err)
		return nil, fmt.Errorf("failed to insert measurement: %w", err)
	}

	for _, r := range in.Readings {
		def, _ := models.MetricByName(r.Metric)
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (measurement_id, sensor, value, time_waited) VALUES (?, ?, ?, ?)`, def.Table),
			id, r.Sensor, r.Value, r.TimeWaited)
		if err != nil {
			metrics.RecordDBQuery("insert", def.Table, time.Since(start), err)
			return nil, fmt.Errorf("failed to insert %s reading: %w", def.Name, err)
		}
	}

	campaignIDs, err := associateCampaigns(ctx, tx, id, in.Longitude, in.Latitude, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		metrics.RecordDBQuery("insert", "measurements", time.Since(start), err)
		return nil, fmt.Errorf("failed to commit measurement: %w", err)
	}
	metrics.RecordDBQuery("insert", "measurements", time.Since(start), nil)
	metrics.MeasurementsCreated.Inc()
	if flag {
		metrics.MeasurementsFlagged.Inc()
	}

	db.notifyWrite()

	return &models.Measurement{
		ID:          id,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Timestamp:   now.UTC(),
		LocalDate:   in.LocalDate,
		LocalTime:   in.LocalTime,
		Flag:        flag,
		WaterSource: source,
		UserID:      in.UserID,
		CampaignIDs: campaignIDs,
	}, nil
}

// associateCampaigns links the measurement to every campaign active at now
// whose region polygon contains the point. Containment runs in-process on
// the handful of active campaigns; an unparseable region is skipped.
func associateCampaigns(ctx context.Context, tx *sql.Tx, measurementID int64, lon, lat float64, now time.Time) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, region_wkt FROM campaigns WHERE start_date <= ? AND end_date >= ?`,
		now.UTC(), now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query active campaigns: %w", err)
	}
	defer closeQuietly(rows)

	var matched []int64
	for rows.Next() {
		var (
			id  int64
			wkt string
		)
		if err := rows.Scan(&id, &wkt); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		g, err := geo.ParseWKT(wkt)
		if err != nil {
			logging.Warn().Int64("campaign_id", id).Err(err).Msg("Skipping campaign with invalid region geometry")
			continue
		}
		if geo.Contains(g, lon, lat) {
			matched = append(matched, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate campaigns: %w", err)
	}

	for _, cid := range matched {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO campaign_measurements (campaign_id, measurement_id) VALUES (?, ?)`,
			cid, measurementID); err != nil {
			return nil, fmt.Errorf("failed to associate campaign %d: %w", cid, err)
		}
	}
	return matched, nil
}

// ListMeasurements returns measurements newest-first, paginated.
func (db *DB) ListMeasurements(ctx context.Context, limit, offset int) ([]models.Measurement, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, latitude, longitude, timestamp, local_date, local_time, flag, water_source, user_id
		 FROM measurements ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	metrics.RecordDBQuery("select", "measurements", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.Measurement
	for rows.Next() {
		var m models.Measurement
		if err := rows.Scan(&m.ID, &m.Latitude, &m.Longitude, &m.Timestamp,
			&m.LocalDate, &m.LocalTime, &m.Flag, &m.WaterSource, &m.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MeasurementCount returns the total number of stored measurements.
func (db *DB) MeasurementCount(ctx context.Context) (int64, error) {
	var n int64
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM measurements`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count measurements: %w", err)
	}
	return n, nil
}
