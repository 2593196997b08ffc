// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

// Package database wraps an embedded DuckDB instance and provides all
// persistence for measurements, metric readings, campaigns, location
// reference geometries, and export presets.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/rtaormina/waterwatch/internal/config"
	"github.com/rtaormina/waterwatch/internal/logging"
)

// DB wraps the DuckDB connection and provides data access methods.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig

	// spatialAvailable tracks whether the spatial extension loaded. When it
	// did, boundary predicates are pushed down as ST_Within; otherwise the
	// caller filters fetched coordinates in memory.
	spatialAvailable bool

	stmtCache   map[string]*sql.Stmt
	stmtCacheMu sync.RWMutex

	// onWrite is invoked after every successful measurement insert so the
	// owning layer can invalidate cached filter results.
	onWrite   func()
	onWriteMu sync.RWMutex
}

// New creates a new database connection and initializes the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Ensure the parent directory exists for file-backed databases.
	// Use 0750 permissions (owner: rwx, group: rx, other: none) per gosec G301.
	if cfg.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	// Disable auto-install/auto-load to prevent hangs in restricted network
	// environments; the spatial extension is loaded explicitly below.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		conn:      conn,
		cfg:       cfg,
		stmtCache: make(map[string]*sql.Stmt),
	}

	db.configureConnectionPool()

	if err := db.initialize(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Int("threads", numThreads).
		Bool("spatial", db.spatialAvailable).
		Msg("Database initialized")

	return db, nil
}

// configureConnectionPool tunes database/sql pooling for an embedded engine.
// DuckDB handles its own threading, so a small pool is sufficient.
func (db *DB) configureConnectionPool() {
	db.conn.SetMaxOpenConns(4)
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(0)
}

// initialize loads extensions and creates tables.
func (db *DB) initialize() error {
	db.loadSpatial()
	if err := db.createTables(); err != nil {
		return err
	}
	return db.createIndexes()
}

// loadSpatial attempts to install and load the DuckDB spatial extension.
// Failure is not fatal: geometric predicates fall back to in-process
// point-in-polygon checks on the fetched coordinates.
func (db *DB) loadSpatial() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, "INSTALL spatial;"); err != nil {
		logging.Warn().Err(err).Msg("Failed to install spatial extension, boundary filters run in-process")
		return
	}
	if _, err := db.conn.ExecContext(ctx, "LOAD spatial;"); err != nil {
		logging.Warn().Err(err).Msg("Failed to load spatial extension, boundary filters run in-process")
		return
	}
	db.spatialAvailable = true
}

// IsSpatialAvailable reports whether the spatial extension loaded.
func (db *DB) IsSpatialAvailable() bool {
	return db.spatialAvailable
}

// SetSpatialAvailableForTesting overrides spatial availability in tests.
func (db *DB) SetSpatialAvailableForTesting(available bool) {
	db.spatialAvailable = available
}

// Conn exposes the underlying connection for health checks.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// OnWrite registers a callback invoked after every successful data write:
// measurement inserts, campaign creation, and preset changes alike. Used to
// clear cached filter results at the write boundary.
func (db *DB) OnWrite(fn func()) {
	db.onWriteMu.Lock()
	db.onWrite = fn
	db.onWriteMu.Unlock()
}

func (db *DB) notifyWrite() {
	db.onWriteMu.RLock()
	fn := db.onWrite
	db.onWriteMu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Ping checks if the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// Checkpoint flushes the WAL to the main database file.
func (db *DB) Checkpoint(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, "CHECKPOINT;")
	return err
}

// Close closes prepared statements and the connection, checkpointing first
// so the WAL is flushed before shutdown.
func (db *DB) Close() error {
	db.stmtCacheMu.Lock()
	for _, stmt := range db.stmtCache {
		if stmt != nil {
			closeQuietly(stmt)
		}
	}
	db.stmtCache = make(map[string]*sql.Stmt)
	db.stmtCacheMu.Unlock()

	if db.conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.Checkpoint(ctx); err != nil {
			logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
		}
		return db.conn.Close()
	}
	return nil
}

// getCachedStmt returns a prepared statement for query, preparing and
// caching it on first use.
func (db *DB) getCachedStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	db.stmtCacheMu.RLock()
	stmt, ok := db.stmtCache[query]
	db.stmtCacheMu.RUnlock()
	if ok {
		return stmt, nil
	}

	db.stmtCacheMu.Lock()
	defer db.stmtCacheMu.Unlock()
	if stmt, ok = db.stmtCache[query]; ok {
		return stmt, nil
	}
	stmt, err := db.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	db.stmtCache[query] = stmt
	return stmt, nil
}

// closeQuietly closes a resource and explicitly ignores any error.
// Use in cleanup paths where Close() errors are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// closeWithLog closes a resource and logs any error.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}
