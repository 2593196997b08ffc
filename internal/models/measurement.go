// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

// Package models defines the WaterWatch domain types shared across the
// database, filter, export, and API layers.
package models

import (
	"strings"
	"time"
)

// Water source categories. Values are lower-cased before persistence, so
// comparisons against these constants are exact.
const (
	WaterSourceNetwork     = "network"
	WaterSourceRooftopTank = "rooftop tank"
	WaterSourceWell        = "well"
	WaterSourceOther       = "other"
)

// WaterSources lists all known water source categories.
var WaterSources = []string{
	WaterSourceNetwork,
	WaterSourceRooftopTank,
	WaterSourceWell,
	WaterSourceOther,
}

// NormalizeWaterSource lower-cases and trims a water source value.
func NormalizeWaterSource(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsValidWaterSource reports whether s (after normalization) is a known
// water source category.
func IsValidWaterSource(s string) bool {
	s = NormalizeWaterSource(s)
	for _, known := range WaterSources {
		if s == known {
			return true
		}
	}
	return false
}

// Measurement is a point-in-time water observation. The geographic point is
// mandatory; the capture timestamp is server-assigned while LocalDate and
// LocalTime are user-supplied wall-clock values at the capture site.
type Measurement struct {
	ID          int64     `json:"id"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Timestamp   time.Time `json:"timestamp"`
	LocalDate   string    `json:"local_date"` // YYYY-MM-DD
	LocalTime   string    `json:"local_time"` // HH:MM:SS
	Flag        bool      `json:"flag"`
	WaterSource string    `json:"water_source"`
	UserID      *int64    `json:"user_id,omitempty"`
	CampaignIDs []int64   `json:"campaign_ids,omitempty"`
}

// MetricReading is one metric observation attached to a measurement, in the
// flattened shape used by exports.
type MetricReading struct {
	MetricType string  `json:"metric_type"`
	Sensor     string  `json:"sensor"`
	Value      float64 `json:"value"`
	TimeWaited float64 `json:"time_waited"` // seconds
}

// ExportRecord is the flattened measurement row produced for exports:
// core fields plus reverse-geocoded location plus side-loaded metrics and
// campaign names.
type ExportRecord struct {
	ID          int64           `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	LocalDate   string          `json:"local_date"`
	LocalTime   string          `json:"local_time"`
	Flag        bool            `json:"flag"`
	WaterSource string          `json:"water_source"`
	UserID      *int64          `json:"user_id"`
	Country     *string         `json:"country"`
	Continent   *string         `json:"continent"`
	Latitude    *float64        `json:"latitude"`
	Longitude   *float64        `json:"longitude"`
	Metrics     []MetricReading `json:"metrics"`
	Campaigns   []string        `json:"campaigns"`
}

// ExportFieldOrder is the canonical column order for tabular exports.
// CSV headers and XML element order follow this list.
var ExportFieldOrder = []string{
	"id",
	"timestamp",
	"local_date",
	"local_time",
	"flag",
	"water_source",
	"user_id",
	"country",
	"continent",
	"latitude",
	"longitude",
	"metrics",
	"campaigns",
}
