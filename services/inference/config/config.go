// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the inference service configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianBayes/pkg/extensions"
)

// ErrInvalidConfig indicates the merged configuration failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

var configValidate = validator.New()

// Config is the complete service configuration.
type Config struct {
	// Network selects the model. Empty Path uses the built-in example.
	Network NetworkConfig `json:"network" yaml:"network"`

	// Engine bounds elimination work.
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Runner controls batch execution.
	Runner RunnerConfig `json:"runner" yaml:"runner"`

	// Cache persists query results.
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Server configures the HTTP API.
	Server ServerConfig `json:"server" yaml:"server"`

	// Telemetry configures traces and metrics export.
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// Log configures logging.
	Log LogConfig `json:"log" yaml:"log"`
}

// NetworkConfig selects the network definition.
type NetworkConfig struct {
	Path     string        `json:"path" yaml:"path"`
	Watch    bool          `json:"watch" yaml:"watch"`
	Debounce time.Duration `json:"debounce" yaml:"debounce" validate:"gte=0"`
}

// EngineConfig bounds elimination.
type EngineConfig struct {
	MaxFactorVariables int    `json:"max_factor_variables" yaml:"max_factor_variables" validate:"gte=1,lte=30"`
	Heuristic          string `json:"heuristic" yaml:"heuristic" validate:"omitempty,oneof=min-fill min-degree"`
}

// RunnerConfig controls batch execution.
type RunnerConfig struct {
	MaxConcurrency int           `json:"max_concurrency" yaml:"max_concurrency" validate:"gte=1,lte=1024"`
	FailFast       bool          `json:"fail_fast" yaml:"fail_fast"`
	QueryTimeout   time.Duration `json:"query_timeout" yaml:"query_timeout" validate:"gte=0"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	Enabled    bool          `json:"enabled" yaml:"enabled"`
	Dir        string        `json:"dir" yaml:"dir" validate:"required_if=Enabled true InMemory false"`
	InMemory   bool          `json:"in_memory" yaml:"in_memory"`
	TTL        time.Duration `json:"ttl" yaml:"ttl" validate:"gte=0"`
	GCInterval time.Duration `json:"gc_interval" yaml:"gc_interval" validate:"gte=0"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `json:"addr" yaml:"addr" validate:"required"`
	RateLimit       float64       `json:"rate_limit" yaml:"rate_limit" validate:"gte=0"`
	Burst           int           `json:"burst" yaml:"burst" validate:"gte=0"`
	MaxBatch        int           `json:"max_batch" yaml:"max_batch" validate:"gte=1,lte=10000"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gte=0"`

	// APIKeys enables token authentication. Empty admits every caller.
	APIKeys []extensions.APIKey `json:"api_keys" yaml:"api_keys" validate:"dive"`

	// Audit logs inference and denied requests, keeping the newest
	// AuditCapacity events for GET /v1/audit.
	Audit         bool `json:"audit" yaml:"audit"`
	AuditCapacity int  `json:"audit_capacity" yaml:"audit_capacity" validate:"gte=0"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	ServiceName    string `json:"service_name" yaml:"service_name" validate:"required"`
	TraceExporter  string `json:"trace_exporter" yaml:"trace_exporter" validate:"oneof=otlp stdout none"`
	MetricExporter string `json:"metric_exporter" yaml:"metric_exporter" validate:"oneof=prometheus stdout none"`
	OTLPEndpoint   string `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `json:"otlp_insecure" yaml:"otlp_insecure"`

	// SampleRatio is the fraction of root traces kept.
	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `json:"json" yaml:"json"`
	Dir   string `json:"dir" yaml:"dir"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Network: NetworkConfig{
			Debounce: 200 * time.Millisecond,
		},
		Engine: EngineConfig{
			MaxFactorVariables: 24,
			Heuristic:          "min-fill",
		},
		Runner: RunnerConfig{
			MaxConcurrency: 8,
			QueryTimeout:   30 * time.Second,
		},
		Cache: CacheConfig{
			Dir:        "~/.aleutian/bayes/cache",
			TTL:        24 * time.Hour,
			GCInterval: 10 * time.Minute,
		},
		Server: ServerConfig{
			Addr:            ":8090",
			RateLimit:       50,
			Burst:           100,
			MaxBatch:        256,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AuditCapacity:   1000,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "aleutian-bayes",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			OTLPEndpoint:   "localhost:4317",
			OTLPInsecure:   true,
			SampleRatio:    1,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - path: Path to a YAML or JSON file. Empty or missing uses defaults.
//
// Outputs:
//   - Config: Merged configuration.
//   - error: Non-nil if the file is invalid or the result fails validation.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	loadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("BAYES_NETWORK"); v != "" {
		cfg.Network.Path = v
	}
	if v := os.Getenv("BAYES_NETWORK_WATCH"); v != "" {
		cfg.Network.Watch = v == "true" || v == "1"
	}

	if v := os.Getenv("BAYES_MAX_FACTOR_VARIABLES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxFactorVariables = i
		}
	}
	if v := os.Getenv("BAYES_HEURISTIC"); v != "" {
		cfg.Engine.Heuristic = v
	}

	if v := os.Getenv("BAYES_MAX_CONCURRENCY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Runner.MaxConcurrency = i
		}
	}
	if v := os.Getenv("BAYES_QUERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Runner.QueryTimeout = d
		}
	}

	if v := os.Getenv("BAYES_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("BAYES_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("BAYES_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}

	if v := os.Getenv("BAYES_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("BAYES_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit = f
		}
	}
	if v := os.Getenv("BAYES_API_KEY"); v != "" {
		cfg.Server.APIKeys = append(cfg.Server.APIKeys, extensions.APIKey{
			UserID: "env",
			Token:  v,
			Roles:  []string{extensions.RoleAdmin},
		})
	}
	if v := os.Getenv("BAYES_AUDIT"); v != "" {
		cfg.Server.Audit = v == "true" || v == "1"
	}

	if v := os.Getenv("BAYES_TRACE_EXPORTER"); v != "" {
		cfg.Telemetry.TraceExporter = v
	}
	if v := os.Getenv("BAYES_METRIC_EXPORTER"); v != "" {
		cfg.Telemetry.MetricExporter = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv("BAYES_TRACE_SAMPLE_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Telemetry.SampleRatio = f
		}
	}

	if v := os.Getenv("BAYES_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("BAYES_LOG_JSON"); v != "" {
		cfg.Log.JSON = v == "true" || v == "1"
	}
}

// Validate checks struct tags and cross-field rules.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Network.Watch && c.Network.Path == "" {
		return fmt.Errorf("%w: network.watch requires network.path", ErrInvalidConfig)
	}
	if c.Server.RateLimit > 0 && c.Server.Burst < 1 {
		return fmt.Errorf("%w: server.burst must be >= 1 when rate_limit is set", ErrInvalidConfig)
	}
	return nil
}
