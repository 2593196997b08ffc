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
	"github.com/rtaormina/waterwatch/internal/metrics"
)

// CandidateRow is one measurement passing the SQL-able filter conditions,
// with per-measurement temperature statistics pre-aggregated. Geometric
// predicates that could not be pushed down still need to be applied to
// Latitude/Longitude by the caller.
type CandidateRow struct {
	ID        int64
	Latitude  float64
	Longitude float64
	Month     int
	TempCount int64
	TempAvg   *float64
	TempMin   *float64
	TempMax   *float64
}

// AllMonths selects every month partition, skipping the month condition.
const AllMonths = -1

// CandidateRows fetches the measurements matching the compiled filter for
// one month partition. month follows the cache convention: 0 selects the
// trailing 30 days from now, 1-12 select a calendar month across years,
// AllMonths disables month filtering. When the spatial extension is loaded
// and a boundary is set, containment is pushed down as ST_Within; otherwise
// the caller checks the boundary via Compiled.MatchesCoordinate.
func (db *DB) CandidateRows(ctx context.Context, compiled *filter.Compiled, month int, now time.Time) ([]CandidateRow, bool, error) {
	where := compiled.Query.Where()
	args := append([]interface{}{}, compiled.Query.Args...)

	if month >= 0 {
		monthCond, monthArgs := filter.MonthCondition(month, now)
		where += " AND " + monthCond
		args = append(args, monthArgs...)
	}

	spatialApplied := false
	if db.spatialAvailable && compiled.BoundaryWKT != "" {
		where += " AND ST_Within(ST_Point(longitude, latitude), ST_GeomFromText(?))"
		args = append(args, compiled.BoundaryWKT)
		spatialApplied = true
		metrics.DBSpatialOperations.WithLabelValues("st_within").Inc()
	}

	query := fmt.Sprintf(`
		SELECT m.id, m.latitude, m.longitude, CAST(EXTRACT(MONTH FROM CAST(m.local_date AS DATE)) AS INTEGER),
		       COALESCE(t.cnt, 0), t.avg_v, t.min_v, t.max_v
		FROM (SELECT id, latitude, longitude, local_date FROM measurements WHERE %s) m
		LEFT JOIN (
			SELECT measurement_id, COUNT(*) AS cnt, AVG(value) AS avg_v, MIN(value) AS min_v, MAX(value) AS max_v
			FROM temperatures GROUP BY measurement_id
		) t ON t.measurement_id = m.id
		ORDER BY m.id`, where)

	stmt, err := db.getCachedStmt(ctx, query)
	if err != nil {
		return nil, false, fmt.Errorf("failed to prepare filtered measurement query: %w", err)
	}

	start := time.Now()
	rows, err := stmt.QueryContext(ctx, args...)
	metrics.RecordDBQuery("select", "measurements", time.Since(start), err)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query filtered measurements: %w", err)
	}
	defer closeQuietly(rows)

	var out []CandidateRow
	for rows.Next() {
		var (
			r             CandidateRow
			avg, min, max sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.Latitude, &r.Longitude, &r.Month, &r.TempCount, &avg, &min, &max); err != nil {
			return nil, false, fmt.Errorf("failed to scan filtered measurement: %w", err)
		}
		if avg.Valid {
			r.TempAvg = &avg.Float64
		}
		if min.Valid {
			r.TempMin = &min.Float64
		}
		if max.Valid {
			r.TempMax = &max.Float64
		}
		out = append(out, r)
	}
	return out, spatialApplied, rows.Err()
}
