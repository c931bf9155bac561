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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianBayes/pkg/extensions"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadPriority(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bayes.yaml")
	content := `
network:
  path: /srv/net.yaml
runner:
  max_concurrency: 4
server:
  addr: ":9000"
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("BAYES_MAX_CONCURRENCY", "16")
	t.Setenv("BAYES_CACHE_TTL", "1h")
	t.Setenv("BAYES_TRACE_SAMPLE_RATIO", "0.25")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/net.yaml", cfg.Network.Path, "file overrides default")
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 16, cfg.Runner.MaxConcurrency, "env overrides file")
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.InDelta(t, 0.25, cfg.Telemetry.SampleRatio, 1e-12)
	assert.Equal(t, 24, cfg.Engine.MaxFactorVariables, "default kept")
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bayes.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"engine": {"max_factor_variables": 12}}`), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Engine.MaxFactorVariables)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadIgnoresMalformedEnvNumbers(t *testing.T) {
	t.Setenv("BAYES_MAX_CONCURRENCY", "lots")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Runner.MaxConcurrency)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"factor width", func(c *Config) { c.Engine.MaxFactorVariables = 31 }},
		{"heuristic", func(c *Config) { c.Engine.Heuristic = "min-weight" }},
		{"concurrency", func(c *Config) { c.Runner.MaxConcurrency = 0 }},
		{"trace exporter", func(c *Config) { c.Telemetry.TraceExporter = "jaeger" }},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 1.5 }},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"addr", func(c *Config) { c.Server.Addr = "" }},
		{"watch without path", func(c *Config) { c.Network.Watch = true }},
		{"rate without burst", func(c *Config) { c.Server.Burst = 0 }},
		{"cache dir", func(c *Config) { c.Cache.Enabled = true; c.Cache.Dir = "" }},
		{"short api key", func(c *Config) {
			c.Server.APIKeys = []extensions.APIKey{{UserID: "u", Token: "short"}}
		}},
		{"api key role", func(c *Config) {
			c.Server.APIKeys = []extensions.APIKey{{UserID: "u", Token: "token-0123456789ab", Roles: []string{"root"}}}
		}},
		{"api key user", func(c *Config) {
			c.Server.APIKeys = []extensions.APIKey{{Token: "token-0123456789ab"}}
		}},
		{"audit capacity", func(c *Config) { c.Server.AuditCapacity = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	t.Run("in-memory cache needs no dir", func(t *testing.T) {
		cfg := Default()
		cfg.Cache.Enabled = true
		cfg.Cache.InMemory = true
		cfg.Cache.Dir = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoadAPIKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bayes.yaml")
	content := `
server:
  audit: true
  api_keys:
    - user: analyst
      token: analyst-token-0123456789
    - user: ops
      token: ops-token-0123456789
      roles: [admin]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("BAYES_API_KEY", "env-token-0123456789")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Server.Audit)
	assert.Equal(t, 1000, cfg.Server.AuditCapacity)
	require.Len(t, cfg.Server.APIKeys, 3)
	assert.Equal(t, "analyst", cfg.Server.APIKeys[0].UserID)
	assert.Empty(t, cfg.Server.APIKeys[0].Roles)
	assert.Equal(t, []string{extensions.RoleAdmin}, cfg.Server.APIKeys[1].Roles)
	assert.Equal(t, extensions.APIKey{UserID: "env", Token: "env-token-0123456789", Roles: []string{"admin"}}, cfg.Server.APIKeys[2])
}
