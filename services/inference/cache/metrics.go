// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/AleutianBayes/services/inference/telemetry"
)

var meter = otel.Meter(telemetry.ScopeCache)

var (
	lookupsTotal metric.Int64Counter
	writesTotal  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		lookupsTotal, err = meter.Int64Counter(
			"inference_cache_lookups_total",
			metric.WithDescription("Result cache lookups by outcome (hit, miss, error)"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		writesTotal, err = meter.Int64Counter(
			"inference_cache_writes_total",
			metric.WithDescription("Results written to the cache"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordLookup(ctx context.Context, result string) {
	if err := initMetrics(); err != nil {
		return
	}
	lookupsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func recordWrite(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	writesTotal.Add(ctx, 1)
}
