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
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianBayes/pkg/extensions"
	"github.com/AleutianAI/AleutianBayes/services/inference/cache"
	"github.com/AleutianAI/AleutianBayes/services/inference/config"
	"github.com/AleutianAI/AleutianBayes/services/inference/network"
	"github.com/AleutianAI/AleutianBayes/services/inference/server"
	"github.com/AleutianAI/AleutianBayes/services/inference/telemetry"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr  string
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP inference API",
		Long: `Serve the HTTP inference API.

Endpoints:
  POST /v1/infer    answer one query
  POST /v1/batch    answer many queries in parallel
  GET  /v1/network  describe the loaded network
  GET  /v1/health   liveness and network fingerprint
  GET  /v1/audit    recent audit events (admin role)
  GET  /metrics     Prometheus metrics

When server.api_keys is configured, every /v1 route except health needs
"Authorization: Bearer <token>" or "X-API-Key: <token>".

With --watch the network file is reloaded when it changes. Cached results
of the replaced network are purged.

Examples:
  bayes serve
  bayes serve --network ./fraud.yaml --watch --addr :9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("watch") {
				a.cfg.Network.Watch = watch
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Reload the network file when it changes")
	return cmd
}

// runServe wires the service together and blocks until ctx is done.
func (a *app) runServe(ctx context.Context) error {
	logger := slog.Default().With("component", "serve")

	tel, err := telemetry.Setup(ctx, a.cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	net, err := a.loadNetwork()
	if err != nil {
		return err
	}

	c, closeCache, err := a.openCache()
	if err != nil {
		return err
	}
	defer closeCache()

	r, err := a.newRunner(c)
	if err != nil {
		return err
	}

	sc := a.cfg.Server
	ext := serviceExtensions(sc)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ext.AuditLogger.Flush(flushCtx); err != nil {
			logger.Warn("audit flush failed", slog.String("error", err.Error()))
		}
	}()

	srv, err := server.New(net, r, server.Options{
		ServiceName:     a.cfg.Telemetry.ServiceName,
		RateLimit:       sc.RateLimit,
		Burst:           sc.Burst,
		MaxBatch:        sc.MaxBatch,
		ReadTimeout:     sc.ReadTimeout,
		WriteTimeout:    sc.WriteTimeout,
		ShutdownTimeout: sc.ShutdownTimeout,
		MetricsHandler:  tel.MetricsHandler(),
		Extensions:      ext,
	})
	if err != nil {
		return err
	}

	if a.cfg.Network.Watch {
		w, err := network.NewWatcher(a.cfg.Network.Path, reloadNetwork(ctx, srv, c, logger), &network.WatcherOptions{
			DebounceWindow: a.cfg.Network.Debounce,
		})
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	logger.Info("serving",
		slog.String("addr", sc.Addr),
		slog.String("network", net.Name()),
		slog.String("fingerprint", net.Fingerprint()),
		slog.Bool("cache", c != nil),
		slog.Bool("watch", a.cfg.Network.Watch),
		slog.Int("api_keys", len(sc.APIKeys)),
		slog.Bool("audit", sc.Audit),
	)
	return srv.Run(ctx, sc.Addr)
}

// reloadNetwork returns the watcher callback: swap the served network and
// drop cached results of the old one. c may be nil.
func reloadNetwork(ctx context.Context, srv *server.Server, c *cache.Store, logger *slog.Logger) func(*network.Network) {
	return func(n *network.Network) {
		old := srv.SetNetwork(n)
		if old == nil || old.Fingerprint() == n.Fingerprint() {
			return
		}
		logger.Info("network replaced",
			slog.String("network", n.Name()),
			slog.String("old_fingerprint", old.Fingerprint()),
			slog.String("fingerprint", n.Fingerprint()),
		)
		if c == nil {
			return
		}
		purged, err := c.Purge(ctx, old.Fingerprint())
		if err != nil {
			logger.Warn("cache purge failed", slog.String("error", err.Error()))
			return
		}
		logger.Info("purged stale results", slog.Int("entries", purged))
	}
}

// serviceExtensions builds the auth and audit hooks from sc. Without keys
// every caller is admitted.
func serviceExtensions(sc config.ServerConfig) extensions.ServiceOptions {
	opts := extensions.DefaultOptions()
	if len(sc.APIKeys) > 0 {
		opts = opts.WithAuth(extensions.NewTokenAuthProvider(sc.APIKeys))
	}
	if sc.Audit {
		opts = opts.WithAudit(extensions.NewLogAuditLogger(nil, sc.AuditCapacity))
	}
	return opts
}
