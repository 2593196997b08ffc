// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/waterwatch/config.yaml",
	"/etc/waterwatch/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load loads configuration using Koanf v2 with layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps flat environment variable names to nested koanf paths.
// Variables not listed here are ignored, so unrelated environment noise
// never leaks into the configuration.
var envMappings = map[string]string{
	"HTTP_HOST":           "server.host",
	"HTTP_PORT":           "server.port",
	"READ_TIMEOUT":        "server.read_timeout",
	"WRITE_TIMEOUT":       "server.write_timeout",
	"SHUTDOWN_TIMEOUT":    "server.shutdown_timeout",
	"CORS_ORIGINS":        "server.cors_origins",
	"DUCKDB_PATH":         "database.path",
	"DUCKDB_MAX_MEMORY":   "database.max_memory",
	"DUCKDB_THREADS":      "database.threads",
	"LOCATIONS_PATH":      "database.locations_path",
	"CACHE_RESULT_TTL":    "cache.result_ttl",
	"CACHE_CLEANUP":       "cache.cleanup_interval",
	"COORD_PRECISION":     "cache.coordinate_precision",
	"EXPORT_MAX_STREAMS":  "export.max_concurrent_streams",
	"EXPORT_FORMAT":       "export.default_format",
	"AUTH_MODE":           "security.auth_mode",
	"JWT_SECRET":          "security.jwt_secret",
	"TOKEN_TIMEOUT":       "security.token_timeout",
	"EXPORT_ROLES":        "security.export_roles",
	"RATE_LIMIT_REQS":     "security.rate_limit_reqs",
	"RATE_LIMIT_WINDOW":   "security.rate_limit_window",
	"RATE_LIMIT_DISABLED": "security.rate_limit_disabled",
	"LOG_LEVEL":           "logging.level",
	"LOG_FORMAT":          "logging.format",
	"LOG_CALLER":          "logging.caller",
}

// envTransform maps an environment variable name to its koanf path.
// Unknown variables map to "" and are dropped by the provider.
func envTransform(key string) string {
	if path, ok := envMappings[strings.ToUpper(key)]; ok {
		return path
	}
	return ""
}

// sliceConfigPaths lists paths parsed as comma-separated slices when they
// arrive as plain strings from the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"security.export_roles",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings but the config expects
// slices; values already loaded as slices from YAML are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}
