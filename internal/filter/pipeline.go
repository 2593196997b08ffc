// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package filter

import (
	"context"
	"fmt"

	"github.com/twpayne/go-geom"

	"github.com/rtaormina/waterwatch/internal/geo"
)

// Compiled is the fully resolved form of a filter request: the SQL-able
// conditions, the expanded month list, the parsed boundary geometry, and
// the location predicate plan. Cheap predicates run in the database;
// geometric ones are applied to the fetched coordinates.
type Compiled struct {
	Query       *Query
	Months      []int
	BoundaryWKT string
	Boundary    geom.T
	Location    LocationPlan

	geoms *geo.Geometries
}

// Pipeline orchestrates the filter stages. Stages are pure and
// independently composable; every parameter is optional.
type Pipeline struct {
	geo *geo.Service
}

// NewPipeline creates a filter pipeline backed by the geometry service.
func NewPipeline(geoService *geo.Service) *Pipeline {
	return &Pipeline{geo: geoService}
}

// Compile applies all stages to the raw parameters. It returns a
// ValidationError for month parsing failures and a plain error for
// boundary geometry parse failures; all other malformed inputs degrade to
// passthrough inside their stage.
func (p *Pipeline) Compile(ctx context.Context, params *Params) (*Compiled, error) {
	q := &Query{}

	ApplyWaterSources(q, params)
	ApplyTemperature(q, params)
	ApplyDateRange(q, params)
	ApplyTimeSlots(q, params)

	months, err := ParseMonths(params.MonthsRaw())
	if err != nil {
		return nil, err
	}

	compiled := &Compiled{
		Query:  q,
		Months: months,
	}

	if wkt := params.BoundaryWKT(); wkt != "" {
		boundary, err := geo.ParseWKT(wkt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBoundary, err)
		}
		compiled.BoundaryWKT = wkt
		compiled.Boundary = boundary
	}

	continents := params.Continents()
	countries := params.Countries()
	if len(continents) > 0 || len(countries) > 0 {
		geoms, err := p.geo.Geometries(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading geometries for location filter: %w", err)
		}
		compiled.geoms = geoms
		compiled.Location = OptimizeLocation(geoms, continents, countries)
	}

	return compiled, nil
}

// NeedsCoordinateFilter reports whether compiled results still require a
// per-record geometric test after the database query.
func (c *Compiled) NeedsCoordinateFilter() bool {
	return c.Location.Active || c.Boundary != nil
}

// MatchesCoordinate applies the location plan and boundary geometry to a
// record's coordinate.
func (c *Compiled) MatchesCoordinate(lon, lat float64) bool {
	if c.Boundary != nil && !geo.Contains(c.Boundary, lon, lat) {
		return false
	}
	if c.Location.Active && !c.Location.Matches(c.geoms, lon, lat) {
		return false
	}
	return true
}
