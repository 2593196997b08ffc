// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package filter

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/rtaormina/waterwatch/internal/cache"
	"github.com/rtaormina/waterwatch/internal/geo"
	"github.com/rtaormina/waterwatch/internal/models"
)

// worldSource builds a synthetic reference table: five unit-square
// countries in Europa (x in [0,5]) and three in Asiania (x in [10,13]),
// all with y in [0,1].
type worldSource struct{}

func (worldSource) Locations(_ context.Context) ([]models.Location, error) {
	var rows []models.Location
	id := int64(1)
	for i := 0; i < 5; i++ {
		rows = append(rows, models.Location{
			ID:        id,
			Country:   fmt.Sprintf("Europa-%d", i),
			Continent: "Europa",
			WKT:       squareWKT(float64(i)),
		})
		id++
	}
	for i := 0; i < 3; i++ {
		rows = append(rows, models.Location{
			ID:        id,
			Country:   fmt.Sprintf("Asiania-%d", i),
			Continent: "Asiania",
			WKT:       squareWKT(float64(10 + i)),
		})
		id++
	}
	return rows, nil
}

func squareWKT(x float64) string {
	return fmt.Sprintf("POLYGON((%g 0, %g 0, %g 1, %g 1, %g 0))", x, x+1, x+1, x, x)
}

func worldGeometries(t *testing.T) *geo.Geometries {
	t.Helper()
	svc := geo.NewService(worldSource{}, cache.New(time.Hour), 4)
	geoms, err := svc.Geometries(context.Background())
	if err != nil {
		t.Fatalf("building test geometries: %v", err)
	}
	return geoms
}

func TestOptimizerFullContinent(t *testing.T) {
	geoms := worldGeometries(t)

	plan := OptimizeLocation(geoms, []string{"Europa"}, nil)
	if !plan.Active {
		t.Fatal("continent-only selection should be active")
	}
	if len(plan.Plans) != 1 || plan.Plans[0].Strategy != StrategyFullContinent {
		t.Errorf("expected full_continent strategy, got %+v", plan.Plans)
	}
}

func TestOptimizerAllCountriesCollapsesToContinent(t *testing.T) {
	geoms := worldGeometries(t)

	all := []string{"Europa-0", "Europa-1", "Europa-2", "Europa-3", "Europa-4"}
	plan := OptimizeLocation(geoms, []string{"Europa"}, all)
	if len(plan.Plans) != 1 || plan.Plans[0].Strategy != StrategyFullContinent {
		t.Errorf("selecting every country should collapse to full_continent, got %+v", plan.Plans)
	}
}

func TestOptimizerExcludeCountries(t *testing.T) {
	geoms := worldGeometries(t)

	// 4 of 5 selected: 1 exclusion beats 4 inclusions.
	plan := OptimizeLocation(geoms, []string{"Europa"},
		[]string{"Europa-0", "Europa-1", "Europa-2", "Europa-3"})
	if len(plan.Plans) != 1 || plan.Plans[0].Strategy != StrategyExcludeCountries {
		t.Fatalf("expected exclude_countries strategy, got %+v", plan.Plans)
	}
	if len(plan.Plans[0].Exclude) != 1 || plan.Plans[0].Exclude[0] != "Europa-4" {
		t.Errorf("expected exclusion of Europa-4, got %v", plan.Plans[0].Exclude)
	}
}

func TestOptimizerIncludeCountries(t *testing.T) {
	geoms := worldGeometries(t)

	// 2 of 5 selected: 3 exclusions are not fewer than 2 inclusions.
	plan := OptimizeLocation(geoms, []string{"Europa"}, []string{"Europa-0", "Europa-1"})
	if len(plan.Plans) != 1 || plan.Plans[0].Strategy != StrategyIncludeCountries {
		t.Fatalf("expected include_countries strategy, got %+v", plan.Plans)
	}
	if len(plan.Plans[0].Include) != 2 {
		t.Errorf("expected 2 inclusions, got %v", plan.Plans[0].Include)
	}
}

func TestOptimizerFailOpenCases(t *testing.T) {
	geoms := worldGeometries(t)

	tests := []struct {
		name       string
		continents []string
		countries  []string
	}{
		{"no selection", nil, nil},
		{"countries without continents", nil, []string{"Europa-0"}},
		{"unknown continent", []string{"Atlantis"}, nil},
		{"country outside selected continent", []string{"Europa"}, []string{"Asiania-0"}},
		{"partially valid countries", []string{"Europa"}, []string{"Europa-0", "Asiania-0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := OptimizeLocation(geoms, tt.continents, tt.countries)
			if plan.Active {
				t.Errorf("expected inactive (fail-open) plan, got %+v", plan)
			}
			// Fail-open: everything matches.
			if !plan.Matches(geoms, 0.5, 0.5) || !plan.Matches(geoms, 100, 100) {
				t.Error("inactive plan must match every coordinate")
			}
		})
	}
}

func TestOptimizerEmptyGeometries(t *testing.T) {
	empty := &geo.Geometries{}
	plan := OptimizeLocation(empty, []string{"Europa"}, nil)
	if plan.Active {
		t.Error("empty reference structures should fail open")
	}
}

// TestOptimizerMatchesBruteForce compares the optimizer's predicate with a
// brute-force per-record reverse geocode over random selections.
func TestOptimizerMatchesBruteForce(t *testing.T) {
	geoms := worldGeometries(t)
	rng := rand.New(rand.NewSource(42))

	continents := []string{"Europa", "Asiania"}
	countries := []string{
		"Europa-0", "Europa-1", "Europa-2", "Europa-3", "Europa-4",
		"Asiania-0", "Asiania-1", "Asiania-2",
	}

	// Check the center of every country square plus points outside all.
	type samplePoint struct {
		lon, lat  float64
		country   string
		continent string
	}
	points := []samplePoint{
		{-5, 0.5, "", ""},
		{20, 0.5, "", ""},
		{2.5, 5, "", ""},
	}
	for i := 0; i < 5; i++ {
		points = append(points, samplePoint{float64(i) + 0.5, 0.5, fmt.Sprintf("Europa-%d", i), "Europa"})
	}
	for i := 0; i < 3; i++ {
		points = append(points, samplePoint{float64(10+i) + 0.5, 0.5, fmt.Sprintf("Asiania-%d", i), "Asiania"})
	}

	for trial := 0; trial < 200; trial++ {
		var selContinents []string
		for _, c := range continents {
			if rng.Intn(2) == 0 {
				selContinents = append(selContinents, c)
			}
		}
		var selCountries []string
		for _, c := range countries {
			if rng.Intn(3) == 0 {
				selCountries = append(selCountries, c)
			}
		}

		plan := OptimizeLocation(geoms, selContinents, selCountries)
		if !plan.Active {
			// Fail-open combinations are covered separately; the
			// optimizer contract only binds active plans.
			continue
		}

		inContinent := make(map[string]bool, len(selContinents))
		for _, c := range selContinents {
			inContinent[c] = true
		}
		inCountry := make(map[string]bool, len(selCountries))
		for _, c := range selCountries {
			inCountry[c] = true
		}

		for _, pr := range points {
			// Brute force: reverse geocode, then test set membership.
			want := false
			if pr.continent != "" && inContinent[pr.continent] {
				if len(selCountries) == 0 {
					want = true
				} else {
					want = inCountry[pr.country]
				}
			}

			got := plan.Matches(geoms, pr.lon, pr.lat)
			if got != want {
				t.Errorf("trial %d: continents=%v countries=%v point=(%g,%g %s): optimizer=%v brute=%v",
					trial, selContinents, selCountries, pr.lon, pr.lat, pr.country, got, want)
			}
		}
	}
}
