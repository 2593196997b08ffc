// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package database

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rtaormina/waterwatch/internal/geo"
	"github.com/rtaormina/waterwatch/internal/logging"
	"github.com/rtaormina/waterwatch/internal/metrics"
	"github.com/rtaormina/waterwatch/internal/models"
)

// Locations returns all location reference rows. Implements
// geo.LocationSource for the geometry cache.
func (db *DB) Locations(ctx context.Context) ([]models.Location, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `SELECT id, country, continent, wkt FROM locations ORDER BY id`)
	metrics.RecordDBQuery("select", "locations", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.Location
	for rows.Next() {
		var l models.Location
		if err := rows.Scan(&l.ID, &l.Country, &l.Continent, &l.WKT); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// InsertLocation adds one location reference row.
func (db *DB) InsertLocation(ctx context.Context, country, continent, wkt string) (int64, error) {
	if _, err := geo.ParseWKT(wkt); err != nil {
		return 0, fmt.Errorf("location %s/%s: %w", continent, country, err)
	}
	var id int64
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO locations (country, continent, wkt) VALUES (?, ?, ?) RETURNING id`,
		country, continent, wkt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert location: %w", err)
	}
	return id, nil
}

// LoadLocationsCSV bulk-loads country,continent,wkt rows from path into the
// location reference table. It is a no-op when the table already has rows,
// so repeated startups do not duplicate the reference set. Rows with
// unparseable geometry are skipped with a warning.
func (db *DB) LoadLocationsCSV(ctx context.Context, path string) error {
	var existing int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM locations`).Scan(&existing); err != nil {
		return fmt.Errorf("failed to count locations: %w", err)
	}
	if existing > 0 {
		logging.Debug().Int64("rows", existing).Msg("Location reference table already populated, skipping CSV load")
		return nil
	}

	f, err := os.Open(path) // #nosec G304 -- operator-supplied reference data path
	if err != nil {
		return fmt.Errorf("failed to open locations file: %w", err)
	}
	defer closeWithLog(f, "locations file")

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 3

	loaded, skipped := 0, 0
	for line := 0; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read locations file: %w", err)
		}
		if line == 0 && record[0] == "country" {
			continue // header row
		}
		if _, err := db.InsertLocation(ctx, record[0], record[1], record[2]); err != nil {
			logging.Warn().Int("line", line+1).Err(err).Msg("Skipping location row")
			skipped++
			continue
		}
		loaded++
	}

	logging.Info().Int("loaded", loaded).Int("skipped", skipped).Str("path", path).Msg("Location reference data loaded")
	return nil
}

// InsertCampaign creates a campaign. An empty region defaults to the whole
// world; the region must be valid polygonal WKT.
func (db *DB) InsertCampaign(ctx context.Context, c models.Campaign) (int64, error) {
	region := c.RegionWKT
	if region == "" {
		region = models.WorldWKT
	}
	if _, err := geo.ParseWKT(region); err != nil {
		return 0, fmt.Errorf("campaign %q: %w", c.Name, err)
	}
	if c.EndDate.Before(c.StartDate) {
		return 0, fmt.Errorf("campaign %q: end date precedes start date", c.Name)
	}

	var id int64
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO campaigns (name, description, start_date, end_date, region_wkt)
		 VALUES (?, ?, ?, ?, ?) RETURNING id`,
		c.Name, c.Description, c.StartDate.UTC(), c.EndDate.UTC(), region).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert campaign: %w", err)
	}
	db.notifyWrite()
	return id, nil
}

// ActiveCampaigns returns campaigns whose time window contains at. When a
// coordinate is supplied, the result is narrowed to campaigns whose region
// contains the point.
func (db *DB) ActiveCampaigns(ctx context.Context, at time.Time, lat, lon *float64) ([]models.Campaign, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, description, start_date, end_date, region_wkt
		 FROM campaigns WHERE start_date <= ? AND end_date >= ? ORDER BY start_date, id`,
		at.UTC(), at.UTC())
	metrics.RecordDBQuery("select", "campaigns", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.Campaign
	for rows.Next() {
		var c models.Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.StartDate, &c.EndDate, &c.RegionWKT); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		if lat != nil && lon != nil {
			g, err := geo.ParseWKT(c.RegionWKT)
			if err != nil {
				logging.Warn().Int64("campaign_id", c.ID).Err(err).Msg("Skipping campaign with invalid region geometry")
				continue
			}
			if !geo.Contains(g, *lon, *lat) {
				continue
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CampaignNames returns the campaign names associated with each of the
// given measurement IDs.
func (db *DB) CampaignNames(ctx context.Context, measurementIDs []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(measurementIDs))
	if len(measurementIDs) == 0 {
		return out, nil
	}

	query := fmt.Sprintf(`
		SELECT cm.measurement_id, c.name
		FROM campaign_measurements cm
		JOIN campaigns c ON c.id = cm.campaign_id
		WHERE cm.measurement_id IN (%s)
		ORDER BY cm.measurement_id, c.id`, idPlaceholders(len(measurementIDs)))

	rows, err := db.conn.QueryContext(ctx, query, idArgs(measurementIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign names: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan campaign name: %w", err)
		}
		out[id] = append(out[id], name)
	}
	return out, rows.Err()
}

// Presets returns the presets visible to userID: their own plus public
// ones. A nil userID returns public presets only.
func (db *DB) Presets(ctx context.Context, userID *int64) ([]models.Preset, error) {
	query := `SELECT id, name, user_id, public, params FROM presets WHERE public ORDER BY id`
	args := []interface{}{}
	if userID != nil {
		query = `SELECT id, name, user_id, public, params FROM presets WHERE public OR user_id = ? ORDER BY id`
		args = append(args, *userID)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query presets: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.Preset
	for rows.Next() {
		var p models.Preset
		if err := rows.Scan(&p.ID, &p.Name, &p.UserID, &p.Public, &p.Params); err != nil {
			return nil, fmt.Errorf("failed to scan preset: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SavePreset stores a named filter parameter bundle.
func (db *DB) SavePreset(ctx context.Context, p models.Preset) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO presets (name, user_id, public, params) VALUES (?, ?, ?, ?) RETURNING id`,
		p.Name, p.UserID, p.Public, p.Params).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert preset: %w", err)
	}
	db.notifyWrite()
	return id, nil
}

// DeletePreset removes a preset owned by userID. Deleting someone else's
// preset or a missing one reports no rows affected.
func (db *DB) DeletePreset(ctx context.Context, id, userID int64) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM presets WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete preset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	if n > 0 {
		db.notifyWrite()
	}
	return n > 0, nil
}

func idPlaceholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ", "
		}
		s += "?"
	}
	return s
}

func idArgs(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
