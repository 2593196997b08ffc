// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package models

import (
	"testing"
	"time"
)

func TestTemperatureRegistered(t *testing.T) {
	def, ok := MetricByName("temperature")
	if !ok {
		t.Fatal("temperature metric should be registered by default")
	}
	if def.Table != "temperatures" {
		t.Errorf("expected table temperatures, got %q", def.Table)
	}
}

func TestTemperatureValidation(t *testing.T) {
	def, _ := MetricByName("temperature")

	tests := []struct {
		value   float64
		wantErr bool
	}{
		{0, false},
		{100, false},
		{50.5, false},
		{-0.1, true},
		{100.1, true},
	}

	for _, tt := range tests {
		err := def.Validate(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%g) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
	}
}

func TestTemperatureFlagBoundary(t *testing.T) {
	def, _ := MetricByName("temperature")

	// Threshold is exclusive: exactly 40.0 does not flag, 40.1 does.
	if def.Flags(40.0) {
		t.Error("value at threshold must not flag the measurement")
	}
	if !def.Flags(40.1) {
		t.Error("value above threshold must flag the measurement")
	}
	if def.Flags(39.9) {
		t.Error("value below threshold must not flag the measurement")
	}
}

func TestNormalizeWaterSource(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Network", "network"},
		{"ROOFTOP TANK", "rooftop tank"},
		{"  well  ", "well"},
		{"other", "other"},
	}

	for _, tt := range tests {
		if got := NormalizeWaterSource(tt.input); got != tt.want {
			t.Errorf("NormalizeWaterSource(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIsValidWaterSource(t *testing.T) {
	if !IsValidWaterSource("Network") {
		t.Error("Network should be valid after normalization")
	}
	if IsValidWaterSource("ocean") {
		t.Error("ocean is not a known water source")
	}
}

func TestCampaignActiveAt(t *testing.T) {
	c := Campaign{
		StartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC),
	}

	if !c.ActiveAt(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)) {
		t.Error("mid-window instant should be active")
	}
	if !c.ActiveAt(c.StartDate) {
		t.Error("window start is inclusive")
	}
	if !c.ActiveAt(c.EndDate) {
		t.Error("window end is inclusive")
	}
	if c.ActiveAt(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("instant after window should not be active")
	}
}

func TestRegisteredMetricsSorted(t *testing.T) {
	RegisterMetric(MetricDefinition{Name: "ph", Table: "ph_readings", Min: 0, Max: 14})
	defs := RegisteredMetrics()
	for i := 1; i < len(defs); i++ {
		if defs[i-1].Name >= defs[i].Name {
			t.Errorf("registry not sorted: %q before %q", defs[i-1].Name, defs[i].Name)
		}
	}
	found := false
	for _, d := range defs {
		if d.Name == "ph" {
			found = true
		}
	}
	if !found {
		t.Error("registered metric missing from listing")
	}
}
