// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package filter

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rtaormina/waterwatch/internal/cache"
	"github.com/rtaormina/waterwatch/internal/geo"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	return NewPipeline(geo.NewService(worldSource{}, cache.New(time.Hour), 4))
}

func TestCompileEmptyParams(t *testing.T) {
	pl := newTestPipeline(t)

	compiled, err := pl.Compile(context.Background(), paramsFromJSON(t, `{}`))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if compiled.Query.Where() != "1=1" {
		t.Errorf("empty params should compile to a passthrough query, got %q", compiled.Query.Where())
	}
	if compiled.NeedsCoordinateFilter() {
		t.Error("empty params should need no coordinate filter")
	}
	if compiled.Months != nil {
		t.Errorf("expected nil months, got %v", compiled.Months)
	}
}

func TestCompileFullRequest(t *testing.T) {
	pl := newTestPipeline(t)

	body := `{
		"measurements": {
			"waterSources": ["well"],
			"temperature": {"from": 5, "to": 35}
		},
		"dateRange": {"from": "2026-01-01", "to": "2026-12-31"},
		"times": [{"from": "08:00", "to": "18:00"}],
		"months": [10, 11],
		"location": {"continents": ["Europa"], "countries": ["Europa-0", "Europa-1"]}
	}`

	compiled, err := pl.Compile(context.Background(), paramsFromJSON(t, body))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	where := compiled.Query.Where()
	for _, fragment := range []string{"water_source IN", "value >= ?", "value <= ?", "local_date >= ?", "local_time >= ?"} {
		if !strings.Contains(where, fragment) {
			t.Errorf("WHERE clause missing %q: %s", fragment, where)
		}
	}
	if len(compiled.Months) != 2 {
		t.Errorf("expected months [10 11], got %v", compiled.Months)
	}
	if !compiled.Location.Active {
		t.Error("expected active location plan")
	}
	if !compiled.NeedsCoordinateFilter() {
		t.Error("location plan requires the coordinate filter")
	}

	// Europa-0 center matches, Europa-4 center does not.
	if !compiled.MatchesCoordinate(0.5, 0.5) {
		t.Error("coordinate in selected country should match")
	}
	if compiled.MatchesCoordinate(4.5, 0.5) {
		t.Error("coordinate in unselected country should not match")
	}
}

func TestCompileMonthValidationError(t *testing.T) {
	pl := newTestPipeline(t)

	_, err := pl.Compile(context.Background(), paramsFromJSON(t, `{"months":[13]}`))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !IsValidationError(err) {
		t.Errorf("expected ValidationError, got %T: %v", err, err)
	}
}

func TestCompileInvalidBoundary(t *testing.T) {
	pl := newTestPipeline(t)

	_, err := pl.Compile(context.Background(), paramsFromJSON(t, `{"boundary_geometry":"not wkt"}`))
	if err == nil {
		t.Fatal("expected error for invalid boundary geometry")
	}
	if IsValidationError(err) {
		t.Error("boundary parse failure is not a month validation error")
	}
	if !strings.Contains(err.Error(), "boundary_geometry") {
		t.Errorf("error should mention boundary_geometry, got %q", err.Error())
	}
}

func TestCompileBoundaryFilter(t *testing.T) {
	pl := newTestPipeline(t)

	body := `{"boundary_geometry":"POLYGON((0 0, 2 0, 2 1, 0 1, 0 0))"}`
	compiled, err := pl.Compile(context.Background(), paramsFromJSON(t, body))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if !compiled.NeedsCoordinateFilter() {
		t.Fatal("boundary requires the coordinate filter")
	}
	if !compiled.MatchesCoordinate(1.0, 0.5) {
		t.Error("point inside boundary should match")
	}
	if compiled.MatchesCoordinate(3.0, 0.5) {
		t.Error("point outside boundary should not match")
	}
}

func TestCompileJapanEuropeFailsOpen(t *testing.T) {
	// A country outside every selected continent invalidates the whole
	// location filter; the documented resolution is fail-open.
	pl := newTestPipeline(t)

	body := `{"location":{"continents":["Europa"],"countries":["Asiania-0"]}}`
	compiled, err := pl.Compile(context.Background(), paramsFromJSON(t, body))
	if err != nil {
		t.Fatalf("invalid combination must not error: %v", err)
	}
	if compiled.Location.Active {
		t.Error("invalid combination should deactivate the location filter")
	}
	if !compiled.MatchesCoordinate(100, 100) {
		t.Error("fail-open plan must match every coordinate")
	}
}
