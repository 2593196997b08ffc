// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

// Package main is the entry point for the WaterWatch server.
//
// WaterWatch collects geotagged water quality measurements, organizes them
// into campaigns, and serves filtered, aggregated, and exported views of
// the data over a REST API.
//
// The server initializes components in the following order:
//
//  1. Configuration: koanf v2 layered sources (defaults, YAML file,
//     environment variables)
//  2. Logging: zerolog, JSON or console format
//  3. Database: embedded DuckDB with the spatial extension when available
//  4. Location reference data: optional CSV bulk load
//  5. Geometry cache: continent/country polygons from the reference table
//  6. Authentication: JWT bearer validation, or open anonymous mode
//  7. HTTP server: chi router with graceful shutdown on SIGINT/SIGTERM
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rtaormina/waterwatch/internal/api"
	"github.com/rtaormina/waterwatch/internal/auth"
	"github.com/rtaormina/waterwatch/internal/cache"
	"github.com/rtaormina/waterwatch/internal/config"
	"github.com/rtaormina/waterwatch/internal/database"
	"github.com/rtaormina/waterwatch/internal/geo"
	"github.com/rtaormina/waterwatch/internal/logging"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Server exited with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).Msg("Starting WaterWatch")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close database")
		}
	}()

	startupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if cfg.Database.LocationsPath != "" {
		if err := db.LoadLocationsCSV(startupCtx, cfg.Database.LocationsPath); err != nil {
			return fmt.Errorf("loading location reference data: %w", err)
		}
	}

	geomCache := cache.New(0) // geometry entries never expire, only invalidate
	geoService := geo.NewService(db, geomCache, cfg.Cache.CoordinatePrecision)
	if err := geoService.Initialize(startupCtx); err != nil {
		return fmt.Errorf("building geometry cache: %w", err)
	}

	var jwtManager *auth.JWTManager
	if cfg.Security.AuthMode == "jwt" {
		jwtManager, err = auth.NewJWTManager(&cfg.Security)
		if err != nil {
			return fmt.Errorf("initializing auth: %w", err)
		}
	} else {
		logging.Warn().Msg("Authentication disabled, all requests are anonymous")
	}

	results := cache.NewWithCleanup(cfg.Cache.ResultTTL, cfg.Cache.CleanupInterval)
	handler := api.NewHandler(cfg, db, geoService, results, jwtManager)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	logging.Info().Msg("Server stopped")
	return nil
}
