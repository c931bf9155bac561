// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianBayes/pkg/logging"
	"github.com/AleutianAI/AleutianBayes/pkg/ux"
	"github.com/AleutianAI/AleutianBayes/services/inference/cache"
	"github.com/AleutianAI/AleutianBayes/services/inference/config"
	"github.com/AleutianAI/AleutianBayes/services/inference/elimination"
	"github.com/AleutianAI/AleutianBayes/services/inference/network"
	"github.com/AleutianAI/AleutianBayes/services/inference/runner"
	store "github.com/AleutianAI/AleutianBayes/services/inference/storage/badger"
)

// =============================================================================
// GLOBAL OPTIONS
// =============================================================================

// app holds the persistent flags and everything PersistentPreRunE builds
// from them. Each root command owns one, so tests can run commands side by
// side.
type app struct {
	configPath  string
	networkPath string
	logLevel    string
	personality string
	jsonOut     bool

	cfg    config.Config
	logger *logging.Logger
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "bayes",
		Short: "Exact inference on boolean Bayesian networks",
		Long: `bayes answers queries on boolean Bayesian networks by variable elimination.

Networks are YAML files of CPTs, utility tables and potentials. Without
--network the built-in credit card fraud network is used.

Examples:
  bayes query Fraud -e FP -e ~IP -e CRP
  bayes query Block --decision -e FP,~IP,CRP
  bayes show --tables
  bayes serve --network ./fraud.yaml`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) { a.teardown() },
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", os.Getenv("BAYES_CONFIG"), "Config file (YAML or JSON)")
	flags.StringVarP(&a.networkPath, "network", "n", "", "Network definition file (default: built-in example)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")
	flags.StringVar(&a.personality, "personality", "", "Output style: standard, minimal, machine (default: auto)")
	flags.BoolVar(&a.jsonOut, "json", false, "Print results as JSON")

	root.AddCommand(
		newQueryCmd(a),
		newOrderCmd(a),
		newBatchCmd(a),
		newShowCmd(a),
		newServeCmd(a),
		newCacheCmd(a),
	)
	return root
}

// setup loads configuration, applies flag overrides and installs the
// logger as the slog default.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.networkPath != "" {
		cfg.Network.Path = a.networkPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "bayes",
		JSON:    cfg.Log.JSON,
		Output:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logger.SetDefault()
	a.logger = logger
	return nil
}

func (a *app) teardown() {
	if a.logger != nil {
		_ = a.logger.Close()
		a.logger = nil
	}
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// printer returns a Printer for w honoring --personality.
func (a *app) printer(w io.Writer) *ux.Printer {
	if a.personality != "" {
		return ux.NewPrinterLevel(w, ux.ParsePersonalityLevel(a.personality))
	}
	return ux.NewPrinter(w)
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadNetwork reads the configured network, or the built-in example.
func (a *app) loadNetwork() (*network.Network, error) {
	if a.cfg.Network.Path == "" {
		return network.Example()
	}
	return network.Load(a.cfg.Network.Path)
}

func (a *app) newEngine() (*elimination.Engine, error) {
	return elimination.NewEngine(elimination.Config{
		MaxFactorVariables: a.cfg.Engine.MaxFactorVariables,
	})
}

// openCache opens the result cache when it is enabled.
//
// Outputs:
//   - *cache.Store: The cache, or nil when disabled.
//   - func(): Closes the underlying database. Never nil.
//   - error: Open failures.
func (a *app) openCache() (*cache.Store, func(), error) {
	cc := a.cfg.Cache
	if !cc.Enabled {
		return nil, func() {}, nil
	}

	var dbCfg store.Config
	if cc.InMemory {
		dbCfg = store.InMemoryConfig()
	} else {
		dbCfg = store.DefaultConfig(cc.Dir)
		dbCfg.GCInterval = cc.GCInterval
	}
	db, err := store.Open(dbCfg)
	if err != nil {
		return nil, func() {}, fmt.Errorf("open cache: %w", err)
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			slog.Warn("closing cache failed", slog.String("error", err.Error()))
		}
	}

	s, err := cache.New(db, cache.Config{TTL: cc.TTL})
	if err != nil {
		closeDB()
		return nil, func() {}, err
	}
	return s, closeDB, nil
}

// newRunner builds a runner from config. c may be nil.
func (a *app) newRunner(c *cache.Store) (*runner.Runner, error) {
	engine, err := a.newEngine()
	if err != nil {
		return nil, err
	}
	rc := runner.Config{
		MaxConcurrency:   a.cfg.Runner.MaxConcurrency,
		FailFast:         a.cfg.Runner.FailFast,
		QueryTimeout:     a.cfg.Runner.QueryTimeout,
		DefaultHeuristic: a.cfg.Engine.Heuristic,
	}
	if c != nil {
		rc.Cache = c
	}
	return runner.New(engine, rc)
}
