// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package cache

import (
	"crypto/md5" //nolint:gosec // non-cryptographic cache key component
	"fmt"
	"time"
)

// GeometryKey is the fixed key under which the geometry cache stores the
// continent/country polygon structures.
const GeometryKey = "location_geoms"

// LastThirtyDaysMonth is the sentinel month value meaning "last 30 calendar
// days from now".
const LastThirtyDaysMonth = 0

// BoundaryHash returns a short stable hash of a boundary polygon's WKT for
// use as a cache key component. An empty boundary hashes to "none".
func BoundaryHash(wkt string) string {
	if wkt == "" {
		return "none"
	}
	sum := md5.Sum([]byte(wkt)) //nolint:gosec // key component, not a credential
	return fmt.Sprintf("%x", sum)[:8]
}

// MonthKey builds the per-month result cache key for a filter category.
// For the last-30-days sentinel the key embeds the current date, so the
// entry naturally expires at midnight without a TTL dependency.
func MonthKey(category string, month int, boundaryHash string, now time.Time) string {
	if month == LastThirtyDaysMonth {
		return fmt.Sprintf("%s:last30days:%s:boundary:%s",
			category, now.Format("2006-01-02"), boundaryHash)
	}
	return fmt.Sprintf("%s:month:%d:boundary:%s", category, month, boundaryHash)
}
