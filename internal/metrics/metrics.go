// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

// Package metrics exposes Prometheus instrumentation for the API surface,
// database queries, caches, and the export pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	DBSpatialOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_spatial_operations_total",
			Help: "Total number of spatial operations (ST_* functions)",
		},
		[]string{"operation_type"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Number of API requests currently being served",
		},
	)

	// Result cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits by cache region",
		},
		[]string{"region"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses by cache region",
		},
		[]string{"region"},
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Total cache invalidations by cache region",
		},
		[]string{"region"},
	)

	// Geometry cache and reverse geocoding metrics
	GeometryCacheRebuilds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geometry_cache_rebuilds_total",
			Help: "Total geometry cache builds from the location reference table",
		},
	)

	GeocodeMemoHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geocode_memo_hits_total",
			Help: "Reverse-geocode lookups served from the coordinate memo",
		},
	)

	GeocodeMemoMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geocode_memo_misses_total",
			Help: "Reverse-geocode lookups requiring polygon containment tests",
		},
	)

	// Export metrics
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exports_total",
			Help: "Total exports by format and delivery mode",
		},
		[]string{"format", "mode"},
	)

	ExportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "export_duration_seconds",
			Help:    "Duration of export rendering in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"format"},
	)

	ExportRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "export_records_total",
			Help: "Total records written by exports per format",
		},
		[]string{"format"},
	)

	ExportStreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "export_streams_active",
			Help: "Streaming exports currently holding a database cursor",
		},
	)

	// Ingest metrics
	MeasurementsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "measurements_created_total",
			Help: "Total measurements ingested",
		},
	)

	MeasurementsFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "measurements_flagged_total",
			Help: "Total measurements flagged as suspicious at ingest",
		},
	)
)

// RecordDBQuery records the duration of a database query, and its failure
// when err is non-nil.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the active request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordExport records one completed export.
func RecordExport(format, mode string, records int, duration time.Duration) {
	ExportsTotal.WithLabelValues(format, mode).Inc()
	ExportDuration.WithLabelValues(format).Observe(duration.Seconds())
	ExportRecords.WithLabelValues(format).Add(float64(records))
}
