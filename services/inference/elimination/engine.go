// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package elimination answers queries over factor lists by variable elimination.
package elimination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianBayes/services/inference/factor"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	statusOK       = "ok"
	statusError    = "error"
	statusCanceled = "canceled"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config configures an Engine.
type Config struct {
	// MaxFactorVariables bounds the width of any intermediate product.
	// Default: 24.
	MaxFactorVariables int

	// Logger receives per-step debug output. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxFactorVariables: 24,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxFactorVariables < 1 || c.MaxFactorVariables > factor.MaxVariables {
		return fmt.Errorf("%w: max factor variables %d not in [1, %d]",
			ErrInvalidConfig, c.MaxFactorVariables, factor.MaxVariables)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Query and Result
// -----------------------------------------------------------------------------

// Query describes one inference request.
type Query struct {
	// Variables are the query variables. The result ranges over them in
	// this order. An empty list yields a scalar: P(evidence) or a total
	// expected utility.
	Variables []factor.Variable

	// Order is the elimination order. Query and evidence variables in it are
	// skipped. A nil order is computed with the MinFill heuristic.
	Order []factor.Variable

	// Evidence binds observed variables. May be nil.
	Evidence *factor.Evidence

	// Normalize divides the result by its sum, giving a distribution.
	Normalize bool
}

// Step records one variable elimination.
type Step struct {
	Variable string   `json:"variable"`
	Inputs   []string `json:"inputs"`
	Output   string   `json:"output"`
	Width    int      `json:"width"`
}

// Result is the outcome of Engine.Infer.
type Result struct {
	// Factor ranges over the query variables in query order.
	Factor *factor.Factor

	// Steps lists eliminations in the order they ran.
	Steps []Step

	// MaxWidth is the widest product built, in variables.
	MaxWidth int

	// Order is the order actually used.
	Order []factor.Variable

	Duration time.Duration
}

// -----------------------------------------------------------------------------
// Engine
// -----------------------------------------------------------------------------

// Engine runs variable elimination queries.
//
// Description:
//
//	Each call to Infer works on its own slice of factor pointers. Factor
//	operations are pure, so the caller's factors and evidence are never
//	modified and the same factors may serve many concurrent queries.
//
// Thread Safety: Safe for concurrent use.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// NewEngine creates an engine.
//
// Outputs:
//   - *Engine: The engine.
//   - error: ErrInvalidConfig if cfg fails validation.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "elimination_engine")),
	}, nil
}

// Infer answers a query by variable elimination.
//
// Description:
//
//	Runs three phases:
//	 1. Every factor mentioning an evidence variable is restricted to the
//	    observed value, in evidence order.
//	 2. For each variable of the order that is neither queried nor
//	    observed, the factors mentioning it are multiplied and the variable
//	    is summed out of the product. Variables no factor mentions are
//	    skipped.
//	 3. The remaining factors are multiplied, reordered to the query
//	    variable order and optionally normalized.
//
//	Before phase 2 the order is checked to cover every variable left after
//	restriction. Context cancellation is checked between eliminations.
//
// Inputs:
//   - ctx: Context for cancellation and tracing. Must not be nil.
//   - factors: The model. Not modified.
//   - q: The query.
//
// Outputs:
//   - *Result: The answer with an elimination trace.
//   - error: ErrNoFactors, ErrNilFactor, ErrQueryIsEvidence, ErrUnknownVariable,
//     ErrIncompleteOrder, ErrFactorTooLarge, ErrZeroProbability, factor
//     errors, or ctx.Err().
//
// Thread Safety: Safe for concurrent use.
func (e *Engine) Infer(ctx context.Context, factors []*factor.Factor, q Query) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	start := time.Now()

	ctx, span := startInferSpan(ctx, q, len(factors))
	defer span.End()

	result, err := e.infer(ctx, factors, q)
	duration := time.Since(start)

	status := statusOK
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = statusCanceled
	default:
		status = statusError
	}
	width := 0
	if result != nil {
		width = result.MaxWidth
	}
	recordQuery(ctx, status, duration, width)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Debug("query failed",
			slog.String("evidence", q.Evidence.String()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	result.Duration = duration
	span.SetAttributes(
		attribute.Int("inference.steps", len(result.Steps)),
		attribute.Int("inference.max_width", result.MaxWidth),
	)
	e.logger.Debug("query answered",
		slog.String("result", result.Factor.String()),
		slog.String("evidence", q.Evidence.String()),
		slog.Int("steps", len(result.Steps)),
		slog.Int("max_width", result.MaxWidth),
		slog.Duration("duration", duration),
	)
	return result, nil
}

func (e *Engine) infer(ctx context.Context, factors []*factor.Factor, q Query) (*Result, error) {
	if err := validate(factors, q); err != nil {
		return nil, err
	}

	// Phase 1: evidence restriction.
	working := make([]*factor.Factor, len(factors))
	copy(working, factors)
	for _, v := range q.Evidence.Variables() {
		value, _ := q.Evidence.Get(v)
		for i, f := range working {
			if !f.Contains(v) {
				continue
			}
			r, err := f.Restrict(v, value)
			if err != nil {
				return nil, err
			}
			working[i] = r
		}
	}

	order := q.Order
	if order == nil {
		order = GreedyOrder(working, q.Variables, nil, MinFill)
	}
	if err := checkOrder(working, q, order); err != nil {
		return nil, err
	}

	result := &Result{Order: append([]factor.Variable(nil), order...)}
	skip := make(map[factor.Variable]struct{}, len(q.Variables))
	for _, v := range q.Variables {
		skip[v] = struct{}{}
	}

	// Phase 2: ordered marginalization.
	for _, v := range order {
		if _, ok := skip[v]; ok || q.Evidence.Contains(v) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var touching, rest []*factor.Factor
		for _, f := range working {
			if f.Contains(v) {
				touching = append(touching, f)
			} else {
				rest = append(rest, f)
			}
		}
		if len(touching) == 0 {
			continue
		}

		product, width, err := e.product(touching)
		if err != nil {
			return nil, fmt.Errorf("eliminating %s: %w", v, err)
		}
		summed, err := product.SumOut(v)
		if err != nil {
			return nil, err
		}

		step := Step{
			Variable: v.Name(),
			Inputs:   names(touching),
			Output:   summed.String(),
			Width:    width,
		}
		result.Steps = append(result.Steps, step)
		result.MaxWidth = max(result.MaxWidth, width)
		addStepEvent(trace.SpanFromContext(ctx), step)
		e.logger.Debug("eliminated variable",
			slog.String("variable", step.Variable),
			slog.String("inputs", strings.Join(step.Inputs, " ")),
			slog.String("output", step.Output),
			slog.Int("width", width),
		)

		working = append(rest, summed)
	}

	// Phase 3: final combination.
	final, width, err := e.product(working)
	if err != nil {
		return nil, err
	}
	result.MaxWidth = max(result.MaxWidth, width)

	final, err = final.Reorder(q.Variables)
	if err != nil {
		return nil, err
	}
	if q.Normalize {
		final, err = final.Normalize()
		if err != nil {
			if errors.Is(err, factor.ErrZeroSum) {
				return nil, fmt.Errorf("%w: [%s]: %w", ErrZeroProbability, q.Evidence, err)
			}
			return nil, err
		}
	}
	result.Factor = final
	return result, nil
}

// product multiplies fs after checking the merged width against the limit.
func (e *Engine) product(fs []*factor.Factor) (*factor.Factor, int, error) {
	seen := make(map[factor.Variable]struct{})
	for _, f := range fs {
		for _, v := range f.Variables() {
			seen[v] = struct{}{}
		}
	}
	width := len(seen)
	if width > e.cfg.MaxFactorVariables {
		return nil, width, fmt.Errorf("%w: product of %d factors spans %d variables, limit %d",
			ErrFactorTooLarge, len(fs), width, e.cfg.MaxFactorVariables)
	}
	p, err := factor.MultiplyAll(fs)
	if err != nil {
		return nil, width, err
	}
	return p, width, nil
}

// Validate runs the checks Infer makes before any table work. When q.Order
// is set it must cover every variable of factors that is neither queried
// nor observed.
//
// Outputs:
//   - error: ErrNoFactors, ErrNilFactor, ErrQueryIsEvidence,
//     ErrUnknownVariable, ErrIncompleteOrder or factor.ErrDuplicateVariable.
func Validate(factors []*factor.Factor, q Query) error {
	if err := validate(factors, q); err != nil {
		return err
	}
	if q.Order == nil {
		return nil
	}
	return checkOrder(factors, q, q.Order)
}

// validate rejects malformed queries before any table work.
func validate(factors []*factor.Factor, q Query) error {
	if len(factors) == 0 {
		return ErrNoFactors
	}
	for i, f := range factors {
		if f == nil {
			return fmt.Errorf("%w: index %d", ErrNilFactor, i)
		}
	}
	seen := make(map[factor.Variable]struct{}, len(q.Variables))
	for _, v := range q.Variables {
		if _, dup := seen[v]; dup {
			return fmt.Errorf("%w: query variable %s", factor.ErrDuplicateVariable, v)
		}
		seen[v] = struct{}{}
		if q.Evidence.Contains(v) {
			return fmt.Errorf("%w: %s", ErrQueryIsEvidence, v)
		}
		if !mentioned(factors, v) {
			return fmt.Errorf("%w: %s", ErrUnknownVariable, v)
		}
	}
	return nil
}

// checkOrder fails if a variable of working is neither queried, observed
// nor in the order.
func checkOrder(working []*factor.Factor, q Query, order []factor.Variable) error {
	covered := make(map[factor.Variable]struct{}, len(order)+len(q.Variables))
	for _, v := range order {
		covered[v] = struct{}{}
	}
	for _, v := range q.Variables {
		covered[v] = struct{}{}
	}
	missing := make(map[string]struct{})
	for _, f := range working {
		for _, v := range f.Variables() {
			if _, ok := covered[v]; !ok && !q.Evidence.Contains(v) {
				missing[v.Name()] = struct{}{}
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	list := make([]string, 0, len(missing))
	for name := range missing {
		list = append(list, name)
	}
	sort.Strings(list)
	return fmt.Errorf("%w: missing %s", ErrIncompleteOrder, strings.Join(list, ","))
}

func mentioned(factors []*factor.Factor, v factor.Variable) bool {
	for _, f := range factors {
		if f.Contains(v) {
			return true
		}
	}
	return false
}

func names(fs []*factor.Factor) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.String()
	}
	return out
}

// -----------------------------------------------------------------------------
// Convenience entry points
// -----------------------------------------------------------------------------

// Infer answers a query with the default engine and a background context.
//
// Inputs:
//   - factors: The model. Not modified.
//   - queryVariables: Variables of the result, in result order.
//   - order: Elimination order. Must cover every non-query, non-evidence variable.
//   - evidence: Observed values. May be nil.
//   - normalize: Whether to normalize the result.
//
// Outputs:
//   - *factor.Factor: The result over queryVariables.
//   - error: As Engine.Infer.
//
// Example:
//
//	ev := factor.NewEvidence().Set(fp, true).Set(ip, false)
//	posterior, err := elimination.Infer(net.Factors(), []factor.Variable{fraud}, order, ev, true)
func Infer(factors []*factor.Factor, queryVariables, order []factor.Variable, evidence *factor.Evidence, normalize bool) (*factor.Factor, error) {
	if order == nil {
		order = []factor.Variable{}
	}
	engine, err := NewEngine(DefaultConfig())
	if err != nil {
		return nil, err
	}
	r, err := engine.Infer(context.Background(), factors, Query{
		Variables: queryVariables,
		Order:     order,
		Evidence:  evidence,
		Normalize: normalize,
	})
	if err != nil {
		return nil, err
	}
	return r.Factor, nil
}
