// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package elimination

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianBayes/services/inference/telemetry"
)

// Package-level tracer and meter for inference.
var (
	tracer = otel.Tracer(telemetry.ScopeElimination)
	meter  = otel.Meter(telemetry.ScopeElimination)
)

// Metrics for elimination queries.
var (
	queriesTotal   metric.Int64Counter
	queryDuration  metric.Float64Histogram
	maxFactorWidth metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		queriesTotal, err = meter.Int64Counter(
			"inference_queries_total",
			metric.WithDescription("Total number of elimination queries"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryDuration, err = meter.Float64Histogram(
			"inference_duration_seconds",
			metric.WithDescription("Duration of elimination queries"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		maxFactorWidth, err = meter.Int64Histogram(
			"inference_max_factor_width",
			metric.WithDescription("Widest intermediate factor built by a query, in variables"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordQuery records the outcome of a query.
func recordQuery(ctx context.Context, status string, duration time.Duration, width int) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	queriesTotal.Add(ctx, 1, attrs)
	queryDuration.Record(ctx, duration.Seconds(), attrs)
	if status == statusOK {
		maxFactorWidth.Record(ctx, int64(width))
	}
}

// startInferSpan creates the span covering one query.
func startInferSpan(ctx context.Context, q Query, factors int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "elimination.Infer",
		trace.WithAttributes(
			attribute.Int("inference.query_variables", len(q.Variables)),
			attribute.Int("inference.evidence", q.Evidence.Len()),
			attribute.Int("inference.factors", factors),
			attribute.Bool("inference.normalize", q.Normalize),
		),
	)
}

// addStepEvent records one elimination on the span.
func addStepEvent(span trace.Span, step Step) {
	span.AddEvent("eliminate", trace.WithAttributes(
		attribute.String("variable", step.Variable),
		attribute.Int("inputs", len(step.Inputs)),
		attribute.Int("width", step.Width),
	))
}
