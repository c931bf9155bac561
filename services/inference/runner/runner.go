// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runner answers batches of queries against one network in
// parallel.
//
// Every query compiles its own evidence, so queries share nothing but the
// immutable network factors. Results can be served from and written to a
// ResultCache.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianBayes/services/inference/cache"
	"github.com/AleutianAI/AleutianBayes/services/inference/elimination"
	"github.com/AleutianAI/AleutianBayes/services/inference/network"
	"github.com/AleutianAI/AleutianBayes/services/inference/telemetry"
)

var tracer = otel.Tracer(telemetry.ScopeRunner)

var (
	// ErrNilEngine indicates New was given no engine.
	ErrNilEngine = errors.New("runner: engine must not be nil")

	// ErrNilNetwork indicates Run was given no network.
	ErrNilNetwork = errors.New("runner: network must not be nil")

	// ErrInvalidConfig indicates a Config that failed validation.
	ErrInvalidConfig = errors.New("runner: invalid config")
)

// ResultCache stores answers by key. *cache.Store implements it.
type ResultCache interface {
	Get(ctx context.Context, key []byte) (*cache.Record, bool, error)
	Put(ctx context.Context, key []byte, rec *cache.Record) error
}

// Config controls a Runner.
type Config struct {
	// MaxConcurrency bounds queries in flight.
	MaxConcurrency int

	// FailFast cancels the rest of a batch after the first failure.
	FailFast bool

	// QueryTimeout bounds each query. Zero means no limit.
	QueryTimeout time.Duration

	// DefaultHeuristic fills QuerySpec.Heuristic when a spec leaves it empty.
	DefaultHeuristic string

	// Cache is optional.
	Cache ResultCache

	// Logger defaults to slog.Default() with component=batch_runner.
	Logger *slog.Logger
}

// DefaultConfig returns eight workers, a 30 second timeout and no cache.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 8,
		QueryTimeout:   30 * time.Second,
	}
}

// Outcome is the result of one query in a batch.
type Outcome struct {
	// ID is the spec's ID, or a generated UUID when the spec has none.
	ID string

	// Index is the position of the query in the batch.
	Index int

	Spec   network.QuerySpec
	Answer *network.Answer

	// Cached is true when Answer came from the cache.
	Cached bool

	Err error
}

// Runner executes query batches.
//
// Thread Safety: Safe for concurrent use.
type Runner struct {
	engine *elimination.Engine
	cfg    Config
	logger *slog.Logger
}

// New creates a Runner.
func New(engine *elimination.Engine, cfg Config) (*Runner, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}
	if cfg.MaxConcurrency < 1 {
		return nil, fmt.Errorf("%w: max concurrency %d < 1", ErrInvalidConfig, cfg.MaxConcurrency)
	}
	if cfg.QueryTimeout < 0 {
		return nil, fmt.Errorf("%w: negative query timeout", ErrInvalidConfig)
	}
	if _, err := elimination.ParseHeuristic(cfg.DefaultHeuristic); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "batch_runner")
	}
	return &Runner{engine: engine, cfg: cfg, logger: logger}, nil
}

// Run answers specs against net.
//
// Description:
//
//	Queries run concurrently, at most MaxConcurrency at a time. Outcomes
//	are returned in input order whatever the completion order. A failed
//	query records its error in its Outcome and the others continue, unless
//	FailFast is set: then the remaining queries are canceled and Run also
//	returns the first failure.
//
// Inputs:
//   - ctx: Cancels the whole batch.
//   - net: The network. Must not be nil.
//   - specs: The queries.
//
// Outputs:
//   - []Outcome: One per spec, same order.
//   - error: ErrNilNetwork, the first failure under FailFast, or ctx.Err().
func (r *Runner) Run(ctx context.Context, net *network.Network, specs []network.QuerySpec) ([]Outcome, error) {
	if net == nil {
		return nil, ErrNilNetwork
	}
	outcomes := make([]Outcome, len(specs))
	start := time.Now()

	var g *errgroup.Group
	gctx := ctx
	if r.cfg.FailFast {
		g, gctx = errgroup.WithContext(ctx)
	} else {
		g = new(errgroup.Group)
	}
	g.SetLimit(r.cfg.MaxConcurrency)

	for i := range specs {
		g.Go(func() error {
			outcomes[i] = r.run(gctx, net, i, specs[i])
			if r.cfg.FailFast && outcomes[i].Err != nil {
				return fmt.Errorf("query %s: %w", outcomes[i].ID, outcomes[i].Err)
			}
			return nil
		})
	}
	err := g.Wait()

	failed := 0
	cached := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
		if o.Cached {
			cached++
		}
	}
	r.logger.Info("batch complete",
		slog.String("network", net.Name()),
		slog.Int("queries", len(specs)),
		slog.Int("failed", failed),
		slog.Int("cached", cached),
		slog.Duration("duration", time.Since(start)),
	)

	if err != nil {
		return outcomes, err
	}
	return outcomes, ctx.Err()
}

// RunOne answers a single query.
func (r *Runner) RunOne(ctx context.Context, net *network.Network, spec network.QuerySpec) Outcome {
	if net == nil {
		return Outcome{ID: spec.ID, Spec: spec, Err: ErrNilNetwork}
	}
	return r.run(ctx, net, 0, spec)
}

func (r *Runner) run(ctx context.Context, net *network.Network, index int, spec network.QuerySpec) Outcome {
	if spec.Heuristic == "" {
		spec.Heuristic = r.cfg.DefaultHeuristic
	}
	out := Outcome{ID: spec.ID, Index: index, Spec: spec}
	if out.ID == "" {
		out.ID = uuid.NewString()
	}

	ctx, span := tracer.Start(ctx, "runner.Query", trace.WithAttributes(
		attribute.String("query.id", out.ID),
		attribute.Int("query.index", index),
		attribute.String("query.key", spec.Key()),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		out.Err = err
		span.SetStatus(codes.Error, "canceled before start")
		return out
	}
	if r.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.QueryTimeout)
		defer cancel()
	}

	// Compile before the cache lookup: the key leaves out the order, so an
	// invalid order must fail whether or not the answer is cached.
	q, factors, err := net.Compile(spec)
	if err != nil {
		out.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Debug("query rejected", slog.String("id", out.ID), slog.String("error", err.Error()))
		return out
	}

	key := cache.Key(net.Fingerprint(), spec.Key())
	if answer, ok := r.lookup(ctx, key, spec); ok {
		out.Answer = answer
		out.Cached = true
		span.SetAttributes(attribute.Bool("query.cached", true))
		return out
	}

	answer, err := network.Execute(ctx, r.engine, q, factors, spec.Decision)
	if err != nil {
		out.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Debug("query failed", slog.String("id", out.ID), slog.String("error", err.Error()))
		return out
	}
	out.Answer = answer
	r.store(ctx, key, out.ID, spec, answer)
	return out
}

// lookup returns a cached answer. Cache failures are logged and treated as
// misses.
func (r *Runner) lookup(ctx context.Context, key []byte, spec network.QuerySpec) (*network.Answer, bool) {
	if r.cfg.Cache == nil {
		return nil, false
	}
	rec, ok, err := r.cfg.Cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("cache lookup failed", slog.String("error", err.Error()))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	f, err := rec.Factor()
	if err != nil {
		r.logger.Warn("discarding cached record", slog.String("key", rec.Key), slog.String("error", err.Error()))
		return nil, false
	}

	answer := &network.Answer{Result: &elimination.Result{Factor: f, MaxWidth: rec.MaxWidth}}
	if spec.Decision {
		answer.Decision, err = elimination.Decide(f, f.Variables()[0])
		if err != nil {
			return nil, false
		}
	}
	return answer, true
}

func (r *Runner) store(ctx context.Context, key []byte, id string, spec network.QuerySpec, answer *network.Answer) {
	if r.cfg.Cache == nil {
		return
	}
	rec, err := cache.FromFactor(id, spec.Key(), answer.Factor, answer.MaxWidth, time.Now())
	if errors.Is(err, cache.ErrScalarResult) {
		return
	}
	if err == nil {
		err = r.cfg.Cache.Put(ctx, key, rec)
	}
	if err != nil {
		r.logger.Warn("cache write failed", slog.String("id", id), slog.String("error", err.Error()))
	}
}
