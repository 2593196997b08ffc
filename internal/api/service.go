// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package api

import (
	"context"
	"fmt"
	"sort"

	"github.com/rtaormina/waterwatch/internal/cache"
	"github.com/rtaormina/waterwatch/internal/database"
	"github.com/rtaormina/waterwatch/internal/filter"
	"github.com/rtaormina/waterwatch/internal/metrics"
)

const resultsRegion = "results"

// matchedRows resolves the compiled filter to the rows passing every
// predicate, including the geometric ones. Results are cached per month
// partition so one stale month does not force recomputing the others; the
// trailing-30-days partition keys on the current date and so rolls over
// daily.
func (h *Handler) matchedRows(ctx context.Context, compiled *filter.Compiled, params *filter.Params) ([]database.CandidateRow, error) {
	months := compiled.Months
	if len(months) == 0 {
		months = []int{database.AllMonths}
	}

	category := cache.GenerateKey(resultsRegion, params.CacheSignature())
	boundaryHash := cache.BoundaryHash(compiled.BoundaryWKT)
	now := h.now()

	var out []database.CandidateRow
	for _, month := range months {
		var key string
		if month == database.AllMonths {
			key = fmt.Sprintf("%s:all:boundary:%s", category, boundaryHash)
		} else {
			key = cache.MonthKey(category, month, boundaryHash, now)
		}

		if cached, ok := h.results.Get(key); ok {
			if rows, ok := cached.([]database.CandidateRow); ok {
				metrics.CacheHits.WithLabelValues(resultsRegion).Inc()
				out = append(out, rows...)
				continue
			}
		}
		metrics.CacheMisses.WithLabelValues(resultsRegion).Inc()

		rows, _, err := h.db.CandidateRows(ctx, compiled, month, now)
		if err != nil {
			return nil, err
		}
		if compiled.NeedsCoordinateFilter() {
			kept := rows[:0]
			for _, row := range rows {
				if compiled.MatchesCoordinate(row.Longitude, row.Latitude) {
					kept = append(kept, row)
				}
			}
			rows = kept
		}

		h.results.Set(key, rows)
		out = append(out, rows...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// summarize computes the search summary: matched measurement count and the
// average of all their temperature readings, weighted by reading count.
// avgTemp is nil when no matched measurement carries a reading.
func summarize(rows []database.CandidateRow) (int, *float64) {
	var (
		sum   float64
		count int64
	)
	for _, row := range rows {
		if row.TempCount > 0 && row.TempAvg != nil {
			sum += *row.TempAvg * float64(row.TempCount)
			count += row.TempCount
		}
	}
	if count == 0 {
		return len(rows), nil
	}
	avg := sum / float64(count)
	return len(rows), &avg
}

// AggregatedGroup is one (country, continent, month) bucket of temperature
// statistics.
type AggregatedGroup struct {
	Country   *string  `json:"country"`
	Continent *string  `json:"continent"`
	Month     int      `json:"month"`
	Count     int64    `json:"count"`
	Avg       *float64 `json:"avg"`
	Min       *float64 `json:"min"`
	Max       *float64 `json:"max"`
}

type groupKey struct {
	country   string
	continent string
	month     int
}

// aggregate reverse-geocodes every matched row and buckets temperature
// statistics by (country, continent, month). Points outside every known
// country land in a shared bucket with nil location.
func (h *Handler) aggregate(ctx context.Context, rows []database.CandidateRow) ([]AggregatedGroup, error) {
	type bucket struct {
		country   *string
		continent *string
		count     int64
		readings  int64
		sum       float64
		min       *float64
		max       *float64
	}

	buckets := map[groupKey]*bucket{}
	for _, row := range rows {
		loc, err := h.geo.Lookup(ctx, row.Latitude, row.Longitude)
		if err != nil {
			return nil, err
		}

		key := groupKey{month: row.Month}
		if loc.Country != nil {
			key.country = *loc.Country
		}
		if loc.Continent != nil {
			key.continent = *loc.Continent
		}

		b, ok := buckets[key]
		if !ok {
			b = &bucket{country: loc.Country, continent: loc.Continent}
			buckets[key] = b
		}
		b.count++
		if row.TempCount > 0 && row.TempAvg != nil {
			b.readings += row.TempCount
			b.sum += *row.TempAvg * float64(row.TempCount)
		}
		if row.TempMin != nil && (b.min == nil || *row.TempMin < *b.min) {
			v := *row.TempMin
			b.min = &v
		}
		if row.TempMax != nil && (b.max == nil || *row.TempMax > *b.max) {
			v := *row.TempMax
			b.max = &v
		}
	}

	groups := make([]AggregatedGroup, 0, len(buckets))
	for key, b := range buckets {
		g := AggregatedGroup{
			Country:   b.country,
			Continent: b.continent,
			Month:     key.month,
			Count:     b.count,
			Min:       b.min,
			Max:       b.max,
		}
		if b.readings > 0 {
			avg := b.sum / float64(b.readings)
			g.Avg = &avg
		}
		groups = append(groups, g)
	}

	sort.Slice(groups, func(i, j int) bool {
		gi, gj := groups[i], groups[j]
		if gi.Month != gj.Month {
			return gi.Month < gj.Month
		}
		ci, cj := "", ""
		if gi.Country != nil {
			ci = *gi.Country
		}
		if gj.Country != nil {
			cj = *gj.Country
		}
		return ci < cj
	})
	return groups, nil
}

func rowIDs(rows []database.CandidateRow) []int64 {
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids
}
