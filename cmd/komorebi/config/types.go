// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the Komorebi CLI configuration from
// ~/.komorebi/komorebi.yaml, creating a default file on first run.
package config

import (
	"os"
	"path/filepath"
)

// KomorebiConfig is the full CLI configuration.
type KomorebiConfig struct {
	Gateway GatewayConfig `yaml:"gateway"`
	Cache   CacheConfig   `yaml:"cache"`
	Watch   WatchConfig   `yaml:"watch"`
	Logging LoggingConfig `yaml:"logging"`
}

// GatewayConfig points the client at a gateway and configures the
// built-in one started by `komorebi serve`.
type GatewayConfig struct {
	// URL is the gateway the dashboard and CLI talk to.
	URL string `yaml:"url"`

	// Addr is the listen address used by `komorebi serve`.
	Addr string `yaml:"addr"`

	// DBPath is the SQLite file used by `komorebi serve`.
	DBPath string `yaml:"db_path"`
}

// CacheConfig configures the dashboard snapshot cache.
type CacheConfig struct {
	// Dir holds the BadgerDB snapshot cache. Empty disables it.
	Dir string `yaml:"dir"`
}

// WatchConfig configures the drop-directory capture watcher.
type WatchConfig struct {
	// Dir is watched for dropped .md/.txt notes.
	Dir string `yaml:"dir"`

	// ProjectID is attached to every watcher capture. Optional.
	ProjectID string `yaml:"project_id"`
}

// LoggingConfig mirrors pkg/logging.Config.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the configuration written on first run.
// Everything lives under ~/.komorebi.
func DefaultConfig() KomorebiConfig {
	base := "~/.komorebi"
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".komorebi")
	}
	return KomorebiConfig{
		Gateway: GatewayConfig{
			URL:    "http://localhost:8600",
			Addr:   ":8600",
			DBPath: filepath.Join(base, "komorebi.db"),
		},
		Cache: CacheConfig{
			Dir: filepath.Join(base, "cache"),
		},
		Watch: WatchConfig{
			Dir: filepath.Join(base, "inbox"),
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   filepath.Join(base, "logs"),
		},
	}
}
