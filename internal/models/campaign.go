// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package models

import "time"

// WorldWKT is the default campaign region covering the whole world.
const WorldWKT = "POLYGON((-180 -90, 180 -90, 180 90, -180 90, -180 -90))"

// Campaign is a named, time-bounded data-collection effort scoped to a
// geographic region. Measurements falling inside the space and time window
// are associated with it at creation time.
type Campaign struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	// RegionWKT is the campaign polygon in WKT; defaults to the whole world.
	RegionWKT string `json:"region_wkt,omitempty"`
}

// ActiveAt reports whether the campaign's time window contains t.
func (c Campaign) ActiveAt(t time.Time) bool {
	return !t.Before(c.StartDate) && !t.After(c.EndDate)
}

// Location is a read-only reference row mapping a country and continent to
// a polygon geometry. Rows are bulk-loaded and rarely change; changes
// invalidate the geometry cache.
type Location struct {
	ID        int64  `json:"id"`
	Country   string `json:"country"`
	Continent string `json:"continent"`
	WKT       string `json:"wkt"`
}

// Preset is a named, reusable bundle of export filter parameters owned by a
// user and optionally public.
type Preset struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	UserID int64  `json:"user_id"`
	Public bool   `json:"public"`
	// Params is the raw JSON filter parameter bundle.
	Params string `json:"params"`
}
