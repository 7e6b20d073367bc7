// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfigIsComplete(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "http://localhost:8600", cfg.Gateway.URL)
	assert.Equal(t, ":8600", cfg.Gateway.Addr)
	assert.NotEmpty(t, cfg.Gateway.DBPath)
	assert.NotEmpty(t, cfg.Cache.Dir)
	assert.NotEmpty(t, cfg.Watch.Dir)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestDefaultConfigRoundTripsThroughYAML(t *testing.T) {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	var parsed KomorebiConfig
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	assert.Equal(t, cfg, parsed)
}

func TestCreateDefaultWritesReadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".komorebi", "komorebi.yaml")
	require.NoError(t, createDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var parsed KomorebiConfig
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	assert.Equal(t, DefaultConfig().Gateway.URL, parsed.Gateway.URL)
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	// Users typically override one or two keys; everything else must
	// keep its default.
	cfg := DefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte("gateway:\n  url: http://otherhost:9000\n"), &cfg))
	assert.Equal(t, "http://otherhost:9000", cfg.Gateway.URL)
	assert.Equal(t, DefaultConfig().Cache.Dir, cfg.Cache.Dir)
}
