// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes inference over HTTP.
//
// Routes:
//
//	POST /v1/infer    one QuerySpec -> InferResponse
//	POST /v1/batch    BatchRequest  -> BatchResponse
//	GET  /v1/network  network.Summary
//	GET  /v1/health   HealthResponse
//	GET  /v1/audit    AuditResponse (admin role)
//	GET  /metrics     Prometheus exposition
//
// Everything under /v1 except health goes through the AuthProvider of
// Options.Extensions. The default provider admits every caller.
//
// The current network is held behind an atomic pointer, so a file watcher
// can swap it while requests are in flight. Each request uses the network
// it loaded at the start.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianBayes/pkg/extensions"
	"github.com/AleutianAI/AleutianBayes/services/inference/network"
	"github.com/AleutianAI/AleutianBayes/services/inference/runner"
)

// Options configures a Server.
type Options struct {
	// ServiceName names the otelgin spans.
	ServiceName string

	// RateLimit is the sustained request rate per second. Zero disables
	// limiting.
	RateLimit float64

	// Burst is the token bucket size.
	Burst int

	// MaxBatch caps queries per batch request.
	MaxBatch int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// MetricsHandler serves /metrics. Nil uses promhttp.Handler().
	MetricsHandler http.Handler

	// Extensions supplies authentication and audit. Nil fields use the
	// no-op defaults.
	Extensions extensions.ServiceOptions

	// Logger defaults to slog.Default() with component=http_server.
	Logger *slog.Logger
}

// DefaultOptions mirrors the config package defaults.
func DefaultOptions() Options {
	return Options{
		ServiceName:     "aleutian-bayes",
		RateLimit:       50,
		Burst:           100,
		MaxBatch:        256,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Extensions:      extensions.DefaultOptions(),
	}
}

// Server serves inference requests.
//
// Thread Safety: Safe for concurrent use.
type Server struct {
	net     atomic.Pointer[network.Network]
	runner  *runner.Runner
	opts    Options
	limiter *rate.Limiter
	router  *gin.Engine
	logger  *slog.Logger
}

// New creates a Server answering queries on n with r.
func New(n *network.Network, r *runner.Runner, opts Options) (*Server, error) {
	if r == nil {
		return nil, ErrNilRunner
	}
	if n == nil {
		return nil, ErrNilNetwork
	}
	if opts.MaxBatch < 1 {
		opts.MaxBatch = DefaultOptions().MaxBatch
	}
	if opts.ServiceName == "" {
		opts.ServiceName = DefaultOptions().ServiceName
	}
	opts.Extensions = opts.Extensions.WithDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "http_server")
	}

	s := &Server{runner: r, opts: opts, logger: logger}
	s.net.Store(n)
	if opts.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(opts.Burst, 1))
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(s.opts.ServiceName))
	router.Use(requestID())
	router.Use(s.accessLog())

	metrics := s.opts.MetricsHandler
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	router.GET("/metrics", gin.WrapH(metrics))

	v1 := router.Group("/v1")
	v1.GET("/health", s.handleHealth)
	v1.GET("/audit", s.authenticate(extensions.RoleAdmin), s.handleAudit)

	authed := v1.Group("", s.authenticate(extensions.RoleQuery))
	authed.GET("/network", s.handleNetwork)

	limited := authed.Group("", s.rateLimit())
	limited.POST("/infer", s.handleInfer)
	limited.POST("/batch", s.handleBatch)

	return router
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Network returns the network currently served.
func (s *Server) Network() *network.Network {
	return s.net.Load()
}

// SetNetwork swaps the served network. Nil is ignored.
//
// Outputs:
//   - *network.Network: The network that was replaced.
func (s *Server) SetNetwork(n *network.Network) *network.Network {
	if n == nil {
		return s.net.Load()
	}
	old := s.net.Swap(n)
	s.logger.Info("network swapped",
		slog.String("network", n.Name()),
		slog.String("fingerprint", n.Fingerprint()),
	)
	return old
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
//
// Description:
//
//	In-flight requests get ShutdownTimeout to finish. A listener error
//	returns immediately.
//
// Outputs:
//   - error: Listen or shutdown failures. A clean shutdown returns nil.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultOptions().ShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down", slog.Duration("timeout", timeout))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
