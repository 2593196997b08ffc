// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package models

import (
	"fmt"
	"sort"
	"sync"
)

// MetricDefinition describes one metric type attachable to a measurement.
// New metric kinds register a definition and a dedicated table; the core
// measurement schema never changes.
type MetricDefinition struct {
	// Name identifies the metric in payloads and exports, e.g. "temperature".
	Name string
	// Table is the database table storing readings of this metric.
	Table string
	// Min and Max bound physically plausible values, inclusive.
	Min float64
	Max float64
	// FlagAbove, when non-nil, flags the owning measurement for values
	// strictly above the threshold.
	FlagAbove *float64
}

// Validate checks a reading value against the plausible bounds.
func (d MetricDefinition) Validate(value float64) error {
	if value < d.Min || value > d.Max {
		return fmt.Errorf("%s value %g out of range [%g, %g]", d.Name, value, d.Min, d.Max)
	}
	return nil
}

// Flags reports whether a reading value should flag the owning measurement.
// The threshold is exclusive: a value exactly at the threshold does not flag.
func (d MetricDefinition) Flags(value float64) bool {
	return d.FlagAbove != nil && value > *d.FlagAbove
}

var (
	metricMu       sync.RWMutex
	metricRegistry = map[string]MetricDefinition{}
)

// RegisterMetric adds a metric definition to the registry. Registering the
// same name twice replaces the earlier definition.
func RegisterMetric(def MetricDefinition) {
	metricMu.Lock()
	defer metricMu.Unlock()
	metricRegistry[def.Name] = def
}

// MetricByName returns the registered definition for name.
func MetricByName(name string) (MetricDefinition, bool) {
	metricMu.RLock()
	defer metricMu.RUnlock()
	def, ok := metricRegistry[name]
	return def, ok
}

// RegisteredMetrics returns all metric definitions sorted by name.
func RegisteredMetrics() []MetricDefinition {
	metricMu.RLock()
	defer metricMu.RUnlock()
	defs := make([]MetricDefinition, 0, len(metricRegistry))
	for _, def := range metricRegistry {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// TemperatureFlagThreshold is the reading above which a measurement is
// marked suspicious.
const TemperatureFlagThreshold = 40.0

//nolint:gochecknoinits // temperature is the built-in metric type
func init() {
	threshold := TemperatureFlagThreshold
	RegisterMetric(MetricDefinition{
		Name:      "temperature",
		Table:     "temperatures",
		Min:       0,
		Max:       100,
		FlagAbove: &threshold,
	})
}
