// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

// Package config loads and validates WaterWatch configuration from layered
// sources: built-in defaults, an optional YAML file, and environment
// variables (highest priority).
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the WaterWatch server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Cache    CacheConfig    `koanf:"cache"`
	Export   ExportConfig   `koanf:"export"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	// Path is the DuckDB database file. ":memory:" runs fully in-memory.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads limits DuckDB worker threads. 0 = number of CPUs.
	Threads int `koanf:"threads"`
	// LocationsPath optionally points to a CSV of country,continent,wkt rows
	// bulk-loaded into the location reference table at startup.
	LocationsPath string `koanf:"locations_path"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	// ResultTTL bounds how long filtered ID sets stay cached.
	ResultTTL       time.Duration `koanf:"result_ttl"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	// CoordinatePrecision is the decimal rounding applied to lat/lon before
	// memoizing reverse-geocode results.
	CoordinatePrecision int `koanf:"coordinate_precision"`
}

// ExportConfig holds export pipeline settings.
type ExportConfig struct {
	// MaxConcurrentStreams bounds simultaneous streaming exports; slow
	// clients hold a database cursor open for the duration of the read.
	MaxConcurrentStreams int    `koanf:"max_concurrent_streams"`
	DefaultFormat        string `koanf:"default_format"`
}

// SecurityConfig holds authentication and rate limiting settings.
type SecurityConfig struct {
	// AuthMode is "jwt" or "none". With "none" every request is treated as
	// an anonymous user and export endpoints reject with 403.
	AuthMode string `koanf:"auth_mode"`
	// JWTSecret signs and validates HS256 bearer tokens (32+ characters).
	JWTSecret    string        `koanf:"jwt_secret"`
	TokenTimeout time.Duration `koanf:"token_timeout"`
	// ExportRoles lists the roles allowed to run full exports via search.
	ExportRoles       []string      `koanf:"export_roles"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute, // streaming exports can be slow
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			Path:      "/data/waterwatch.duckdb",
			MaxMemory: "2GB",
			Threads:   0,
		},
		Cache: CacheConfig{
			ResultTTL:           time.Hour,
			CleanupInterval:     5 * time.Minute,
			CoordinatePrecision: 4,
		},
		Export: ExportConfig{
			MaxConcurrentStreams: 8,
			DefaultFormat:        "json",
		},
		Security: SecurityConfig{
			AuthMode:        "jwt",
			TokenTimeout:    24 * time.Hour,
			ExportRoles:     []string{"researcher", "admin"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Security.AuthMode {
	case "jwt":
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("security.jwt_secret must be at least 32 characters in jwt mode")
		}
	case "none":
	default:
		return fmt.Errorf("security.auth_mode must be jwt or none, got %q", c.Security.AuthMode)
	}
	if c.Cache.CoordinatePrecision < 0 || c.Cache.CoordinatePrecision > 8 {
		return fmt.Errorf("cache.coordinate_precision must be in [0, 8], got %d", c.Cache.CoordinatePrecision)
	}
	if c.Export.MaxConcurrentStreams < 1 {
		return fmt.Errorf("export.max_concurrent_streams must be positive, got %d", c.Export.MaxConcurrentStreams)
	}
	switch c.Export.DefaultFormat {
	case "csv", "json", "xml", "geojson":
	default:
		return fmt.Errorf("export.default_format must be one of csv, json, xml, geojson, got %q", c.Export.DefaultFormat)
	}
	return nil
}
