// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Params is the raw filter parameter bundle from a search request body.
// Every accessor tolerates absent or mistyped values by returning the
// zero value, so individual stages can fall back to passthrough.
type Params struct {
	raw map[string]interface{}
}

// ParseParams decodes a JSON request body into Params.
// Malformed JSON is a hard error; the handler maps it to 400 "Invalid JSON".
func ParseParams(body []byte) (*Params, error) {
	if len(body) == 0 {
		return &Params{raw: map[string]interface{}{}}, nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return &Params{raw: raw}, nil
}

// FromMap wraps an already-decoded parameter map.
func FromMap(m map[string]interface{}) *Params {
	if m == nil {
		m = map[string]interface{}{}
	}
	return &Params{raw: m}
}

// section returns a nested object value, or nil when absent/mistyped.
func (p *Params) section(key string) map[string]interface{} {
	if m, ok := p.raw[key].(map[string]interface{}); ok {
		return m
	}
	return nil
}

// WaterSources returns the requested water source names, or nil when the
// parameter is absent or not a list (passthrough).
func (p *Params) WaterSources() []string {
	m := p.section("measurements")
	if m == nil {
		return nil
	}
	list, ok := m["waterSources"].([]interface{})
	if !ok {
		return nil
	}
	sources := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			sources = append(sources, s)
		}
	}
	return sources
}

// TemperatureBound returns the numeric temperature bound named by key
// ("from" or "to"), or nil when absent or malformed.
func (p *Params) TemperatureBound(key string) *float64 {
	m := p.section("measurements")
	if m == nil {
		return nil
	}
	temp, ok := m["temperature"].(map[string]interface{})
	if !ok {
		return nil
	}
	return toFloat(temp[key])
}

// DateBound returns the date-range bound named by key ("from" or "to") as
// a raw string, or "" when absent or not a string.
func (p *Params) DateBound(key string) string {
	m := p.section("dateRange")
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// TimeSlots returns the raw time-slot objects, or nil when absent.
func (p *Params) TimeSlots() []map[string]interface{} {
	list, ok := p.raw["times"].([]interface{})
	if !ok {
		return nil
	}
	slots := make([]map[string]interface{}, 0, len(list))
	for _, v := range list {
		if m, ok := v.(map[string]interface{}); ok {
			slots = append(slots, m)
		}
	}
	return slots
}

// MonthsRaw returns the raw months parameter value (nil when absent).
func (p *Params) MonthsRaw() interface{} {
	return p.raw["months"]
}

// Continents returns the selected continent names.
func (p *Params) Continents() []string {
	return p.locationList("continents")
}

// Countries returns the selected country names.
func (p *Params) Countries() []string {
	return p.locationList("countries")
}

func (p *Params) locationList(key string) []string {
	loc := p.section("location")
	if loc == nil {
		return nil
	}
	list, ok := loc[key].([]interface{})
	if !ok {
		return nil
	}
	names := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			names = append(names, s)
		}
	}
	return names
}

// BoundaryWKT returns the boundary polygon parameter, or "".
func (p *Params) BoundaryWKT() string {
	if s, ok := p.raw["boundary_geometry"].(string); ok {
		return s
	}
	return ""
}

// Format returns the requested export format token, or "" when the
// request wants the summary response instead of an export.
func (p *Params) Format() string {
	if s, ok := p.raw["format"].(string); ok {
		return s
	}
	return ""
}

// CacheSignature returns a copy of the raw parameters with the components
// that are keyed separately stripped out: months (each month is its own
// cache partition), the boundary polygon (hashed into the key on its own),
// and the export format (which never changes the matched set). Two requests
// that differ only in those fields share cache partitions.
func (p *Params) CacheSignature() map[string]interface{} {
	sig := make(map[string]interface{}, len(p.raw))
	for k, v := range p.raw {
		switch k {
		case "months", "boundary_geometry", "format":
			continue
		}
		sig[k] = v
	}
	return sig
}

// toFloat coerces JSON numbers and numeric strings to *float64.
// Anything else yields nil.
func toFloat(v interface{}) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case int:
		f := float64(t)
		return &f
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return &f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return &f
		}
	}
	return nil
}
