// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

// Package geo builds and caches the country/continent polygon structures
// used for reverse geocoding and location filtering.
package geo

import (
	"fmt"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
	"github.com/twpayne/go-geom/xy"
)

// Geometries is the cached triple built from the location reference table:
// one merged geometry per continent, one geometry per country, and the
// continent to country-set mapping.
type Geometries struct {
	// Continents maps continent name to the merged geometry of its countries.
	Continents map[string]*geom.MultiPolygon
	// Countries maps country name to its polygon geometry.
	Countries map[string]geom.T
	// Mapping maps continent name to the set of its country names.
	Mapping map[string]map[string]struct{}
	// CountryContinent maps country name to its continent name.
	CountryContinent map[string]string
}

// Empty reports whether the reference table produced no geometries.
// Callers must treat this as "no location filtering possible", not an error.
func (g *Geometries) Empty() bool {
	return g == nil || len(g.Countries) == 0
}

// CountriesIn returns the country names of a continent, or nil for an
// unknown continent.
func (g *Geometries) CountriesIn(continent string) []string {
	set, ok := g.Mapping[continent]
	if !ok {
		return nil
	}
	countries := make([]string, 0, len(set))
	for name := range set {
		countries = append(countries, name)
	}
	return countries
}

// ParseWKT parses a WKT string into a polygonal geometry. Non-polygonal
// geometry types are rejected.
func ParseWKT(s string) (geom.T, error) {
	g, err := wkt.Unmarshal(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid WKT: %w", err)
	}
	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
		return g, nil
	default:
		return nil, fmt.Errorf("expected polygonal geometry, got %T", g)
	}
}

// Contains reports whether the polygonal geometry g contains the point
// (lon, lat). Interior rings are holes: a point inside a hole is outside.
func Contains(g geom.T, lon, lat float64) bool {
	coord := geom.Coord{lon, lat}
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, coord)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), coord) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func polygonContains(p *geom.Polygon, coord geom.Coord) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	if !xy.IsPointInRing(p.Layout(), coord, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.IsPointInRing(p.Layout(), coord, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

// mergeInto appends the polygons of g to the continent MultiPolygon.
// An appended union is geometrically equivalent to a dissolved union for
// containment tests, which is all these geometries are used for.
func mergeInto(mp *geom.MultiPolygon, g geom.T) error {
	switch t := g.(type) {
	case *geom.Polygon:
		return mp.Push(t)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if err := mp.Push(t.Polygon(i)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("cannot merge geometry type %T", g)
	}
}
