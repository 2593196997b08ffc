// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rtaormina/waterwatch/internal/logging"
	"github.com/rtaormina/waterwatch/internal/models"
)

// Query accumulates SQL WHERE conditions and their arguments. Conditions
// are ANDed together; an empty Query matches everything.
type Query struct {
	Conditions []string
	Args       []interface{}
}

// Where returns the conditions joined for embedding in a WHERE clause,
// starting from a neutral "1=1" so callers can append unconditionally.
func (q *Query) Where() string {
	clause := "1=1"
	for _, cond := range q.Conditions {
		clause += " AND " + cond
	}
	return clause
}

func (q *Query) add(cond string, args ...interface{}) {
	q.Conditions = append(q.Conditions, cond)
	q.Args = append(q.Args, args...)
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// ApplyWaterSources narrows by water source category. Absent or non-list
// input passes through; unknown source names simply match nothing.
func ApplyWaterSources(q *Query, p *Params) {
	sources := p.WaterSources()
	if len(sources) == 0 {
		return
	}
	args := make([]interface{}, 0, len(sources))
	for _, s := range sources {
		args = append(args, models.NormalizeWaterSource(s))
	}
	q.add(fmt.Sprintf("water_source IN (%s)", placeholders(len(args))), args...)
}

// ApplyTemperature narrows by temperature reading bounds. Each malformed
// bound is logged and ignored independently; the filter never errors.
func ApplyTemperature(q *Query, p *Params) {
	from := p.TemperatureBound("from")
	to := p.TemperatureBound("to")

	if from == nil && p.hasTemperatureKey("from") {
		logging.Warn().Msg("Ignoring malformed temperature 'from' bound")
	}
	if to == nil && p.hasTemperatureKey("to") {
		logging.Warn().Msg("Ignoring malformed temperature 'to' bound")
	}

	if from != nil {
		q.add("id IN (SELECT measurement_id FROM temperatures WHERE value >= ?)", *from)
	}
	if to != nil {
		q.add("id IN (SELECT measurement_id FROM temperatures WHERE value <= ?)", *to)
	}
}

func (p *Params) hasTemperatureKey(key string) bool {
	m := p.section("measurements")
	if m == nil {
		return false
	}
	temp, ok := m["temperature"].(map[string]interface{})
	if !ok {
		return false
	}
	_, present := temp[key]
	return present
}

// ApplyDateRange narrows by inclusive local-date bounds. Non-string or
// malformed values are ignored.
func ApplyDateRange(q *Query, p *Params) {
	if from := parseISODate(p.DateBound("from")); from != "" {
		q.add("local_date >= ?", from)
	}
	if to := parseISODate(p.DateBound("to")); to != "" {
		q.add("local_date <= ?", to)
	}
}

func parseISODate(s string) string {
	if s == "" {
		return ""
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		logging.Warn().Str("value", s).Msg("Ignoring malformed date bound")
		return ""
	}
	return s
}

// ApplyTimeSlots narrows by an OR across clock-time ranges on the local
// time of day. A missing "from" defaults to start of day and a missing
// "to" to end of day. Ranges with from > to contribute no match: midnight
// wraparound is not supported. A slot with invalid time syntax is skipped;
// if no slot survives, the filter passes through.
func ApplyTimeSlots(q *Query, p *Params) {
	slots := p.TimeSlots()
	if len(slots) == 0 {
		return
	}

	var conds []string
	var args []interface{}
	for _, slot := range slots {
		from, fromOK := clockOrDefault(slot["from"], "00:00:00")
		to, toOK := clockOrDefault(slot["to"], "23:59:59")
		if !fromOK || !toOK {
			logging.Warn().Msg("Skipping time slot with invalid clock time")
			continue
		}
		if from > to {
			// Wraparound ranges match nothing rather than being split.
			conds = append(conds, "1=0")
			continue
		}
		conds = append(conds, "(local_time >= ? AND local_time <= ?)")
		args = append(args, from, to)
	}

	if len(conds) == 0 {
		return
	}
	q.add("("+strings.Join(conds, " OR ")+")", args...)
}

// clockOrDefault normalizes a clock-time slot value to HH:MM:SS, applying
// def when the value is absent. Returns ok=false for unparseable values.
func clockOrDefault(v interface{}, def string) (string, bool) {
	if v == nil {
		return def, true
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return def, true
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04:05"), true
		}
	}
	return "", false
}

// ParseMonths normalizes the months parameter to a sorted, deduplicated
// slice. The sentinel 0 means "last 30 calendar days" and collapses any
// mix to [0]. Returns nil for an absent parameter. Out-of-range and
// non-numeric values produce a ValidationError naming the offending
// values; this filter fails loudly where the optional ones degrade.
func ParseMonths(raw interface{}) ([]int, error) {
	if raw == nil {
		return nil, nil
	}

	var tokens []interface{}
	switch t := raw.(type) {
	case []interface{}:
		tokens = t
	default:
		tokens = []interface{}{raw}
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	seen := make(map[int]struct{})
	var months []int
	var outOfRange []string
	hasSentinel := false

	for _, tok := range tokens {
		m, err := monthValue(tok)
		if err != nil {
			return nil, NewValidationError(fmt.Sprintf("invalid month value %v: %v", tok, err))
		}
		if m == 0 {
			hasSentinel = true
			continue
		}
		if m < 1 || m > 12 {
			outOfRange = append(outOfRange, strconv.Itoa(m))
			continue
		}
		if _, dup := seen[m]; !dup {
			seen[m] = struct{}{}
			months = append(months, m)
		}
	}

	if len(outOfRange) > 0 {
		return nil, NewValidationError(fmt.Sprintf(
			"month values out of range [1, 12]: %s", strings.Join(outOfRange, ", ")))
	}
	if hasSentinel {
		return []int{0}, nil
	}

	sort.Ints(months)
	return months, nil
}

// ParseMonthsCSV parses a comma-separated months query parameter.
func ParseMonthsCSV(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	tokens := make([]interface{}, 0, len(parts))
	for _, part := range parts {
		tokens = append(tokens, strings.TrimSpace(part))
	}
	return ParseMonths(tokens)
}

func monthValue(v interface{}) (int, error) {
	switch t := v.(type) {
	case float64:
		if t != float64(int(t)) {
			return 0, fmt.Errorf("not an integer")
		}
		return int(t), nil
	case int:
		return t, nil
	case string:
		m, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("not a number")
		}
		return m, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// MonthCondition returns the WHERE fragment restricting to one month
// value, honoring the last-30-days sentinel relative to now. Both predicates
// run on the reporter's local_date, not the server-assigned timestamp: a
// measurement taken late on the last day of a month belongs to that month
// regardless of when the server recorded it. local_date is stored as an ISO
// string, so the last-30-days bound compares lexicographically.
func MonthCondition(month int, now time.Time) (string, []interface{}) {
	if month == 0 {
		cutoff := now.AddDate(0, 0, -30).Format("2006-01-02")
		return "local_date >= ?", []interface{}{cutoff}
	}
	return "EXTRACT(MONTH FROM CAST(local_date AS DATE)) = ?", []interface{}{month}
}
