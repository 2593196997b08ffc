// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rtaormina/waterwatch/internal/cache"
	"github.com/rtaormina/waterwatch/internal/config"
	"github.com/rtaormina/waterwatch/internal/filter"
	"github.com/rtaormina/waterwatch/internal/geo"
	"github.com/rtaormina/waterwatch/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 2})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// Boundary predicates are exercised through the in-process path so the
	// suite does not depend on extension downloads.
	db.SetSpatialAvailableForTesting(false)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

func sampleMeasurement(source string, tempValue float64) NewMeasurement {
	return NewMeasurement{
		Latitude:    51.99,
		Longitude:   4.37,
		LocalDate:   "2026-08-15",
		LocalTime:   "14:30:00",
		WaterSource: source,
		Readings: []MetricInput{
			{Metric: "temperature", Sensor: "analog", Value: tempValue, TimeWaited: 120},
		},
	}
}

func insertSample(t *testing.T, db *DB, in NewMeasurement, now time.Time) *models.Measurement {
	t.Helper()
	m, err := db.InsertMeasurement(context.Background(), in, now)
	if err != nil {
		t.Fatalf("failed to insert measurement: %v", err)
	}
	return m
}

func compileFilter(t *testing.T, db *DB, raw map[string]interface{}) *filter.Compiled {
	t.Helper()
	svc := geo.NewService(db, cache.New(time.Minute), 4)
	compiled, err := filter.NewPipeline(svc).Compile(context.Background(), filter.FromMap(raw))
	if err != nil {
		t.Fatalf("failed to compile filter: %v", err)
	}
	return compiled
}

func TestInsertMeasurement(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	m := insertSample(t, db, sampleMeasurement("Network", 21.5), now)
	if m.ID == 0 {
		t.Error("expected a generated measurement ID")
	}
	if m.WaterSource != models.WaterSourceNetwork {
		t.Errorf("water source not normalized: %q", m.WaterSource)
	}
	if m.Flag {
		t.Error("21.5 degrees should not flag the measurement")
	}

	flagged := insertSample(t, db, sampleMeasurement("well", 40.1), now)
	if !flagged.Flag {
		t.Error("40.1 degrees should flag the measurement")
	}

	boundary := insertSample(t, db, sampleMeasurement("well", 40.0), now)
	if boundary.Flag {
		t.Error("exactly 40.0 degrees should not flag the measurement")
	}
}

func TestInsertMeasurementRejectsInvalid(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now()

	if _, err := db.InsertMeasurement(context.Background(), sampleMeasurement("spring", 20), now); err == nil {
		t.Error("expected error for unknown water source")
	}
	if _, err := db.InsertMeasurement(context.Background(), sampleMeasurement("well", 100.5), now); err == nil {
		t.Error("expected error for out-of-range temperature")
	}
	in := sampleMeasurement("well", 20)
	in.Readings[0].Metric = "salinity"
	if _, err := db.InsertMeasurement(context.Background(), in, now); err == nil {
		t.Error("expected error for unregistered metric")
	}

	// Failed inserts must not leave partial rows behind.
	n, err := db.MeasurementCount(context.Background())
	if err != nil {
		t.Fatalf("failed to count measurements: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty table after rejected inserts, got %d rows", n)
	}
}

func TestCampaignAutoAssociation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	delta := models.Campaign{
		Name:      "Delta Survey",
		StartDate: now.AddDate(0, -1, 0),
		EndDate:   now.AddDate(0, 1, 0),
		RegionWKT: "POLYGON((4 51, 5 51, 5 53, 4 53, 4 51))",
	}
	deltaID, err := db.InsertCampaign(ctx, delta)
	if err != nil {
		t.Fatalf("failed to insert campaign: %v", err)
	}

	expired := delta
	expired.Name = "Expired Survey"
	expired.EndDate = now.AddDate(0, 0, -1)
	expired.StartDate = now.AddDate(0, -2, 0)
	if _, err := db.InsertCampaign(ctx, expired); err != nil {
		t.Fatalf("failed to insert campaign: %v", err)
	}

	world := models.Campaign{
		Name:      "Global Baseline",
		StartDate: now.AddDate(-1, 0, 0),
		EndDate:   now.AddDate(1, 0, 0),
	}
	worldID, err := db.InsertCampaign(ctx, world)
	if err != nil {
		t.Fatalf("failed to insert campaign: %v", err)
	}

	inside := insertSample(t, db, sampleMeasurement("network", 20), now)
	if len(inside.CampaignIDs) != 2 {
		t.Fatalf("expected association with delta and world campaigns, got %v", inside.CampaignIDs)
	}

	out := sampleMeasurement("network", 20)
	out.Latitude, out.Longitude = -33.9, 18.4
	outside := insertSample(t, db, out, now)
	if len(outside.CampaignIDs) != 1 || outside.CampaignIDs[0] != worldID {
		t.Errorf("expected world-only association, got %v", outside.CampaignIDs)
	}

	names, err := db.CampaignNames(ctx, []int64{inside.ID, outside.ID})
	if err != nil {
		t.Fatalf("failed to fetch campaign names: %v", err)
	}
	if len(names[inside.ID]) != 2 || names[inside.ID][0] != "Delta Survey" {
		t.Errorf("unexpected campaign names for inside point: %v", names[inside.ID])
	}
	_ = deltaID
}

func TestActiveCampaigns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	if _, err := db.InsertCampaign(ctx, models.Campaign{
		Name:      "Delta Survey",
		StartDate: now.AddDate(0, -1, 0),
		EndDate:   now.AddDate(0, 1, 0),
		RegionWKT: "POLYGON((4 51, 5 51, 5 53, 4 53, 4 51))",
	}); err != nil {
		t.Fatalf("failed to insert campaign: %v", err)
	}

	active, err := db.ActiveCampaigns(ctx, now, nil, nil)
	if err != nil {
		t.Fatalf("failed to query active campaigns: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected one active campaign, got %d", len(active))
	}

	lat, lon := 52.0, 4.4
	near, err := db.ActiveCampaigns(ctx, now, &lat, &lon)
	if err != nil {
		t.Fatalf("failed to query campaigns at point: %v", err)
	}
	if len(near) != 1 {
		t.Errorf("expected campaign covering Delft, got %d", len(near))
	}

	farLat, farLon := -33.9, 18.4
	far, err := db.ActiveCampaigns(ctx, now, &farLat, &farLon)
	if err != nil {
		t.Fatalf("failed to query campaigns at point: %v", err)
	}
	if len(far) != 0 {
		t.Errorf("expected no campaigns at distant point, got %d", len(far))
	}

	none, err := db.ActiveCampaigns(ctx, now.AddDate(0, 3, 0), nil, nil)
	if err != nil {
		t.Fatalf("failed to query campaigns outside window: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no campaigns after end date, got %d", len(none))
	}
}

func TestListMeasurementsPagination(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		insertSample(t, db, sampleMeasurement("network", 20), base.Add(time.Duration(i)*time.Hour))
	}

	page, err := db.ListMeasurements(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("failed to list measurements: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(page))
	}
	if !page[0].Timestamp.After(page[1].Timestamp) {
		t.Error("expected newest-first ordering")
	}

	rest, err := db.ListMeasurements(context.Background(), 10, 2)
	if err != nil {
		t.Fatalf("failed to list measurements: %v", err)
	}
	if len(rest) != 3 {
		t.Errorf("expected 3 remaining rows, got %d", len(rest))
	}
}

func TestCandidateRowsFilters(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	insertSample(t, db, sampleMeasurement("network", 18), now)
	insertSample(t, db, sampleMeasurement("well", 35), now)
	january := sampleMeasurement("well", 10)
	january.LocalDate = "2026-01-10"
	insertSample(t, db, january, time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))

	compiled := compileFilter(t, db, map[string]interface{}{
		"measurements": map[string]interface{}{
			"waterSources": []interface{}{"well"},
		},
	})

	august, _, err := db.CandidateRows(context.Background(), compiled, 8, now)
	if err != nil {
		t.Fatalf("failed to fetch candidates: %v", err)
	}
	if len(august) != 1 {
		t.Fatalf("expected one well measurement in August, got %d", len(august))
	}
	if august[0].TempAvg == nil || *august[0].TempAvg != 35 {
		t.Errorf("unexpected temperature stats: %+v", august[0])
	}

	jan, _, err := db.CandidateRows(context.Background(), compiled, 1, now)
	if err != nil {
		t.Fatalf("failed to fetch candidates: %v", err)
	}
	if len(jan) != 1 || jan[0].Month != 1 {
		t.Fatalf("expected one January well measurement, got %+v", jan)
	}

	recent, _, err := db.CandidateRows(context.Background(), compiled, cache.LastThirtyDaysMonth, now)
	if err != nil {
		t.Fatalf("failed to fetch candidates: %v", err)
	}
	if len(recent) != 1 {
		t.Errorf("expected the January row to fall outside the trailing window, got %d rows", len(recent))
	}
}

func TestCandidateRowsTemperatureRange(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	insertSample(t, db, sampleMeasurement("network", 5), now)
	insertSample(t, db, sampleMeasurement("network", 22), now)
	insertSample(t, db, sampleMeasurement("network", 39), now)

	compiled := compileFilter(t, db, map[string]interface{}{
		"measurements": map[string]interface{}{
			"temperature": map[string]interface{}{"from": 10, "to": 30},
		},
	})

	rows, _, err := db.CandidateRows(context.Background(), compiled, 8, now)
	if err != nil {
		t.Fatalf("failed to fetch candidates: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one measurement between 10 and 30 degrees, got %d", len(rows))
	}
	if rows[0].TempAvg == nil || *rows[0].TempAvg != 22 {
		t.Errorf("unexpected surviving measurement: %+v", rows[0])
	}
}

func TestLocationsAndCSVLoad(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "locations.csv")
	content := "country,continent,wkt\n" +
		"Netherlands,Europe,\"POLYGON((3 50, 8 50, 8 54, 3 54, 3 50))\"\n" +
		"Broken,Europe,\"POINT(1 1)\"\n" +
		"Jordan,Asia,\"POLYGON((34 29, 40 29, 40 34, 34 34, 34 29))\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write CSV: %v", err)
	}

	if err := db.LoadLocationsCSV(ctx, path); err != nil {
		t.Fatalf("failed to load locations: %v", err)
	}

	locations, err := db.Locations(ctx)
	if err != nil {
		t.Fatalf("failed to query locations: %v", err)
	}
	if len(locations) != 2 {
		t.Fatalf("expected 2 valid locations (point row skipped), got %d", len(locations))
	}

	// A second load against a populated table is a no-op.
	if err := db.LoadLocationsCSV(ctx, path); err != nil {
		t.Fatalf("repeated load failed: %v", err)
	}
	locations, err = db.Locations(ctx)
	if err != nil {
		t.Fatalf("failed to query locations: %v", err)
	}
	if len(locations) != 2 {
		t.Errorf("repeated load duplicated rows: %d", len(locations))
	}
}

func TestPresetVisibility(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	owner := int64(1)
	other := int64(2)
	for _, p := range []models.Preset{
		{Name: "mine-private", UserID: owner, Public: false, Params: `{"months":[6]}`},
		{Name: "mine-public", UserID: owner, Public: true, Params: `{}`},
		{Name: "theirs-private", UserID: other, Public: false, Params: `{}`},
	} {
		if _, err := db.SavePreset(ctx, p); err != nil {
			t.Fatalf("failed to save preset: %v", err)
		}
	}

	visible, err := db.Presets(ctx, &owner)
	if err != nil {
		t.Fatalf("failed to query presets: %v", err)
	}
	if len(visible) != 2 {
		t.Errorf("owner should see own and public presets, got %d", len(visible))
	}

	anonymous, err := db.Presets(ctx, nil)
	if err != nil {
		t.Fatalf("failed to query presets: %v", err)
	}
	if len(anonymous) != 1 || anonymous[0].Name != "mine-public" {
		t.Errorf("anonymous should see public presets only, got %+v", anonymous)
	}
}

func TestExportSourceStreams(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	if _, err := db.InsertCampaign(ctx, models.Campaign{
		Name:      "Global Baseline",
		StartDate: now.AddDate(-1, 0, 0),
		EndDate:   now.AddDate(1, 0, 0),
	}); err != nil {
		t.Fatalf("failed to insert campaign: %v", err)
	}

	var ids []int64
	for i := 0; i < 3; i++ {
		m := insertSample(t, db, sampleMeasurement("network", 20+float64(i)), now)
		ids = append(ids, m.ID)
	}

	source := db.ExportSource(ctx, ids)
	defer func() {
		if err := source.Close(); err != nil {
			t.Errorf("failed to close source: %v", err)
		}
	}()

	var records []models.ExportRecord
	for {
		rec, ok, err := source.Next()
		if err != nil {
			t.Fatalf("source error: %v", err)
		}
		if !ok {
			break
		}
		records = append(records, rec)
	}

	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for _, rec := range records {
		if rec.Latitude == nil || rec.Longitude == nil {
			t.Errorf("record %d missing coordinates", rec.ID)
		}
		if len(rec.Metrics) != 1 || rec.Metrics[0].MetricType != "temperature" {
			t.Errorf("record %d missing temperature reading: %+v", rec.ID, rec.Metrics)
		}
		if len(rec.Campaigns) != 1 || rec.Campaigns[0] != "Global Baseline" {
			t.Errorf("record %d missing campaign name: %v", rec.ID, rec.Campaigns)
		}
		if rec.Country != nil || rec.Continent != nil {
			t.Errorf("record %d should leave geocoding to the caller", rec.ID)
		}
	}
}

func TestExportSourceEmpty(t *testing.T) {
	db := setupTestDB(t)
	source := db.ExportSource(context.Background(), nil)
	defer func() { _ = source.Close() }()

	_, ok, err := source.Next()
	if err != nil {
		t.Fatalf("source error: %v", err)
	}
	if ok {
		t.Error("empty source should be immediately exhausted")
	}
}

func TestOnWriteInvalidation(t *testing.T) {
	db := setupTestDB(t)
	calls := 0
	db.OnWrite(func() { calls++ })

	insertSample(t, db, sampleMeasurement("network", 20), time.Now())
	if calls != 1 {
		t.Errorf("expected one write notification, got %d", calls)
	}

	if _, err := db.InsertMeasurement(context.Background(), sampleMeasurement("spring", 20), time.Now()); err == nil {
		t.Fatal("expected rejected insert")
	}
	if calls != 1 {
		t.Errorf("rejected insert should not notify, got %d calls", calls)
	}

	_, err := db.InsertCampaign(context.Background(), models.Campaign{
		Name:      "autumn",
		StartDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 11, 30, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("failed to insert campaign: %v", err)
	}
	if calls != 2 {
		t.Errorf("campaign insert should notify, got %d calls", calls)
	}

	presetID, err := db.SavePreset(context.Background(), models.Preset{
		Name: "mine", UserID: 7, Params: `{}`,
	})
	if err != nil {
		t.Fatalf("failed to save preset: %v", err)
	}
	if calls != 3 {
		t.Errorf("preset save should notify, got %d calls", calls)
	}

	if deleted, err := db.DeletePreset(context.Background(), presetID, 99); err != nil || deleted {
		t.Fatalf("delete by non-owner should be a no-op, got %v, %v", deleted, err)
	}
	if calls != 3 {
		t.Errorf("no-op delete should not notify, got %d calls", calls)
	}
	if deleted, err := db.DeletePreset(context.Background(), presetID, 7); err != nil || !deleted {
		t.Fatalf("owner delete failed: %v, %v", deleted, err)
	}
	if calls != 4 {
		t.Errorf("preset delete should notify, got %d calls", calls)
	}
}

func TestPingAndCheckpoint(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	if err := db.Ping(ctx); err != nil {
		t.Errorf("ping failed: %v", err)
	}
	if err := db.Checkpoint(ctx); err != nil {
		t.Errorf("checkpoint failed: %v", err)
	}
}
