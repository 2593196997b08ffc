// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context bounding DDL execution. Schema creation
// on a cold file can be slow when the WAL needs replaying.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create schema object: %w", err)
		}
	}
	return nil
}

// tableCreationQueries returns the schema DDL in dependency order.
// local_date and local_time are stored as ISO strings so lexicographic
// comparison matches chronological order in filter predicates.
func tableCreationQueries() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS measurements_id_seq`,
		`CREATE SEQUENCE IF NOT EXISTS campaigns_id_seq`,
		`CREATE SEQUENCE IF NOT EXISTS locations_id_seq`,
		`CREATE SEQUENCE IF NOT EXISTS presets_id_seq`,
		`CREATE SEQUENCE IF NOT EXISTS temperatures_id_seq`,

		`CREATE TABLE IF NOT EXISTS measurements (
			id BIGINT PRIMARY KEY DEFAULT nextval('measurements_id_seq'),
			latitude DOUBLE NOT NULL,
			longitude DOUBLE NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			local_date VARCHAR NOT NULL,
			local_time VARCHAR NOT NULL,
			flag BOOLEAN NOT NULL DEFAULT FALSE,
			water_source VARCHAR NOT NULL,
			user_id BIGINT
		)`,

		`CREATE TABLE IF NOT EXISTS temperatures (
			id BIGINT PRIMARY KEY DEFAULT nextval('temperatures_id_seq'),
			measurement_id BIGINT NOT NULL,
			sensor VARCHAR NOT NULL DEFAULT '',
			value DOUBLE NOT NULL,
			time_waited DOUBLE NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS campaigns (
			id BIGINT PRIMARY KEY DEFAULT nextval('campaigns_id_seq'),
			name VARCHAR NOT NULL,
			description VARCHAR NOT NULL DEFAULT '',
			start_date TIMESTAMP NOT NULL,
			end_date TIMESTAMP NOT NULL,
			region_wkt VARCHAR NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS campaign_measurements (
			campaign_id BIGINT NOT NULL,
			measurement_id BIGINT NOT NULL,
			PRIMARY KEY (campaign_id, measurement_id)
		)`,

		`CREATE TABLE IF NOT EXISTS locations (
			id BIGINT PRIMARY KEY DEFAULT nextval('locations_id_seq'),
			country VARCHAR NOT NULL,
			continent VARCHAR NOT NULL,
			wkt VARCHAR NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS presets (
			id BIGINT PRIMARY KEY DEFAULT nextval('presets_id_seq'),
			name VARCHAR NOT NULL,
			user_id BIGINT NOT NULL,
			public BOOLEAN NOT NULL DEFAULT FALSE,
			params VARCHAR NOT NULL DEFAULT '{}'
		)`,
	}
}

func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE INDEX IF NOT EXISTS idx_measurements_timestamp ON measurements(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_measurements_water_source ON measurements(water_source)`,
		`CREATE INDEX IF NOT EXISTS idx_temperatures_measurement ON temperatures(measurement_id)`,
		`CREATE INDEX IF NOT EXISTS idx_campaign_measurements_measurement ON campaign_measurements(measurement_id)`,
		`CREATE INDEX IF NOT EXISTS idx_locations_country ON locations(country)`,
	}
	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
