// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package filter

import (
	"sort"

	"github.com/rtaormina/waterwatch/internal/geo"
	"github.com/rtaormina/waterwatch/internal/logging"
)

// Strategy names the per-continent predicate construction choice.
type Strategy string

const (
	// StrategyFullContinent uses a single continent-level predicate.
	StrategyFullContinent Strategy = "full_continent"
	// StrategyIncludeCountries ORs the selected countries' polygons.
	StrategyIncludeCountries Strategy = "include_countries"
	// StrategyExcludeCountries subtracts a few exclusions from the
	// continent predicate.
	StrategyExcludeCountries Strategy = "exclude_countries"
)

// maxExclusions caps how many unselected countries still make the
// continent-minus-exclusions strategy worthwhile.
const maxExclusions = 3

// ContinentPlan is the predicate plan for one selected continent.
type ContinentPlan struct {
	Continent string
	Strategy  Strategy
	// Include lists countries for StrategyIncludeCountries.
	Include []string
	// Exclude lists countries subtracted under StrategyExcludeCountries.
	Exclude []string
}

// LocationPlan is the optimizer's output for a whole selection.
//
// Active is false when no location filtering applies, either because no
// selection was made or because the selection was invalid. Invalid
// combinations fail open: the caller applies no location filter and
// returns more data rather than erroring.
type LocationPlan struct {
	Active bool
	Plans  []ContinentPlan
}

// OptimizeLocation builds the minimal set of geometric predicates for the
// selected continents and countries.
//
// Continent-only selection means "everything in the continent". Countries
// without any continents, unknown continents, and countries outside every
// selected continent all invalidate the whole filter (fail-open).
func OptimizeLocation(geoms *geo.Geometries, continents, countries []string) LocationPlan {
	if len(continents) == 0 {
		if len(countries) > 0 {
			// Countries cannot be resolved without their continents.
			logging.Debug().Msg("Location filter: countries without continents, passing through")
		}
		return LocationPlan{}
	}
	if geoms.Empty() {
		return LocationPlan{}
	}

	selected := make(map[string]struct{}, len(countries))
	for _, c := range countries {
		selected[c] = struct{}{}
	}

	matched := make(map[string]struct{})
	var plans []ContinentPlan

	for _, continent := range continents {
		all, known := geoms.Mapping[continent]
		if !known {
			logging.Debug().Str("continent", continent).Msg("Location filter: unknown continent, passing through")
			return LocationPlan{}
		}

		plan := planContinent(continent, all, selected, matched)
		if plan != nil {
			plans = append(plans, *plan)
		}
	}

	// Any selected country that belongs to none of the selected
	// continents invalidates the whole filter.
	for _, c := range countries {
		if _, ok := matched[c]; !ok {
			logging.Debug().Str("country", c).Msg("Location filter: country outside selected continents, passing through")
			return LocationPlan{}
		}
	}

	if len(plans) == 0 {
		return LocationPlan{}
	}
	return LocationPlan{Active: true, Plans: plans}
}

// planContinent chooses the predicate strategy for one continent.
// Returns nil when the continent contributes no predicate.
func planContinent(continent string, all map[string]struct{}, selected, matched map[string]struct{}) *ContinentPlan {
	// No countries specified at all: the whole continent is selected.
	if len(selected) == 0 {
		return &ContinentPlan{Continent: continent, Strategy: StrategyFullContinent}
	}

	var include, exclude []string
	for country := range all {
		if _, ok := selected[country]; ok {
			include = append(include, country)
			matched[country] = struct{}{}
		} else {
			exclude = append(exclude, country)
		}
	}
	sort.Strings(include)
	sort.Strings(exclude)

	switch {
	case len(include) == 0:
		return nil
	case len(exclude) == 0:
		return &ContinentPlan{Continent: continent, Strategy: StrategyFullContinent}
	case len(exclude) <= maxExclusions && len(exclude) < len(include):
		return &ContinentPlan{Continent: continent, Strategy: StrategyExcludeCountries, Exclude: exclude}
	default:
		return &ContinentPlan{Continent: continent, Strategy: StrategyIncludeCountries, Include: include}
	}
}

// Matches applies the plan's inclusion and exclusion predicates to one
// coordinate. An inactive plan matches everything.
func (p LocationPlan) Matches(geoms *geo.Geometries, lon, lat float64) bool {
	if !p.Active {
		return true
	}
	for _, plan := range p.Plans {
		switch plan.Strategy {
		case StrategyFullContinent:
			if mp, ok := geoms.Continents[plan.Continent]; ok && geo.Contains(mp, lon, lat) {
				return true
			}
		case StrategyIncludeCountries:
			for _, country := range plan.Include {
				if g, ok := geoms.Countries[country]; ok && geo.Contains(g, lon, lat) {
					return true
				}
			}
		case StrategyExcludeCountries:
			mp, ok := geoms.Continents[plan.Continent]
			if !ok || !geo.Contains(mp, lon, lat) {
				continue
			}
			excluded := false
			for _, country := range plan.Exclude {
				if g, ok := geoms.Countries[country]; ok && geo.Contains(g, lon, lat) {
					excluded = true
					break
				}
			}
			if !excluded {
				return true
			}
		}
	}
	return false
}
