// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package geo

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/twpayne/go-geom"

	"github.com/rtaormina/waterwatch/internal/cache"
	"github.com/rtaormina/waterwatch/internal/logging"
	"github.com/rtaormina/waterwatch/internal/metrics"
	"github.com/rtaormina/waterwatch/internal/models"
)

// LocationSource loads the location reference rows.
type LocationSource interface {
	Locations(ctx context.Context) ([]models.Location, error)
}

// LookupResult is the outcome of reverse-geocoding one coordinate.
// Both fields are nil when the point is in no known polygon, e.g.
// international waters; that is a valid outcome, not an error.
type LookupResult struct {
	Country   *string `json:"country"`
	Continent *string `json:"continent"`
}

// Service owns the geometry cache lifecycle: it lazily builds the
// continent/country polygon structures from the location reference table,
// serves reverse-geocode lookups against them, and is invalidated
// explicitly when reference rows change.
//
// A rebuild race between workers is benign: the cache write is idempotent,
// so concurrent first-miss rebuilds only duplicate work.
type Service struct {
	source    LocationSource
	cache     *cache.Cache
	precision int

	memoMu sync.RWMutex
	memo   map[string]LookupResult
}

// NewService creates a geometry cache service. precision is the decimal
// rounding applied to coordinates before memoizing lookups, bounding the
// memo's cardinality.
func NewService(source LocationSource, geomCache *cache.Cache, precision int) *Service {
	return &Service{
		source:    source,
		cache:     geomCache,
		precision: precision,
		memo:      make(map[string]LookupResult),
	}
}

// Initialize builds the geometry structures if they are not already cached.
// A second call before invalidation is a no-op with no database reads.
func (s *Service) Initialize(ctx context.Context) error {
	if _, ok := s.cache.Get(cache.GeometryKey); ok {
		return nil
	}
	_, err := s.rebuild(ctx)
	return err
}

// Invalidate drops the cached geometries and the coordinate memo. Called
// when location reference rows change or on admin force-rebuild.
func (s *Service) Invalidate() {
	s.cache.Delete(cache.GeometryKey)

	s.memoMu.Lock()
	s.memo = make(map[string]LookupResult)
	s.memoMu.Unlock()
}

// Rebuild forces a fresh build from the reference table, replacing any
// cached structures.
func (s *Service) Rebuild(ctx context.Context) error {
	s.Invalidate()
	_, err := s.rebuild(ctx)
	return err
}

// Geometries returns the cached structures, building them on first use.
func (s *Service) Geometries(ctx context.Context) (*Geometries, error) {
	if cached, ok := s.cache.Get(cache.GeometryKey); ok {
		if geoms, ok := cached.(*Geometries); ok {
			return geoms, nil
		}
	}
	return s.rebuild(ctx)
}

func (s *Service) rebuild(ctx context.Context) (*Geometries, error) {
	rows, err := s.source.Locations(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading location reference rows: %w", err)
	}

	geoms := &Geometries{
		Continents:       make(map[string]*geom.MultiPolygon),
		Countries:        make(map[string]geom.T),
		Mapping:          make(map[string]map[string]struct{}),
		CountryContinent: make(map[string]string),
	}

	for _, row := range rows {
		g, err := ParseWKT(row.WKT)
		if err != nil {
			logging.Warn().
				Str("country", row.Country).
				Err(err).
				Msg("Skipping location row with unparseable geometry")
			continue
		}

		geoms.Countries[row.Country] = g
		geoms.CountryContinent[row.Country] = row.Continent

		if geoms.Mapping[row.Continent] == nil {
			geoms.Mapping[row.Continent] = make(map[string]struct{})
		}
		geoms.Mapping[row.Continent][row.Country] = struct{}{}

		mp, ok := geoms.Continents[row.Continent]
		if !ok {
			mp = geom.NewMultiPolygon(geom.XY)
			geoms.Continents[row.Continent] = mp
		}
		if err := mergeInto(mp, g); err != nil {
			logging.Warn().
				Str("country", row.Country).
				Err(err).
				Msg("Skipping country geometry in continent merge")
		}
	}

	// Idempotent write: identical reference data always produces
	// geometrically equivalent structures.
	s.cache.Set(cache.GeometryKey, geoms)
	metrics.GeometryCacheRebuilds.Inc()

	logging.Info().
		Int("countries", len(geoms.Countries)).
		Int("continents", len(geoms.Continents)).
		Msg("Geometry cache built")

	return geoms, nil
}

// Lookup reverse-geocodes a coordinate against the cached country
// geometries. Results are memoized per rounded coordinate.
func (s *Service) Lookup(ctx context.Context, lat, lon float64) (LookupResult, error) {
	key := s.memoKey(lat, lon)

	s.memoMu.RLock()
	result, ok := s.memo[key]
	s.memoMu.RUnlock()
	if ok {
		metrics.GeocodeMemoHits.Inc()
		return result, nil
	}
	metrics.GeocodeMemoMisses.Inc()

	geoms, err := s.Geometries(ctx)
	if err != nil {
		return LookupResult{}, err
	}

	result = LookupResult{}
	for country, g := range geoms.Countries {
		if Contains(g, lon, lat) {
			c := country
			continent := geoms.CountryContinent[country]
			result.Country = &c
			result.Continent = &continent
			break
		}
	}

	s.memoMu.Lock()
	s.memo[key] = result
	s.memoMu.Unlock()

	return result, nil
}

func (s *Service) memoKey(lat, lon float64) string {
	factor := math.Pow10(s.precision)
	return fmt.Sprintf("%g:%g",
		math.Round(lat*factor)/factor,
		math.Round(lon*factor)/factor)
}
