// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry installs the OpenTelemetry providers of the bayes
// service from its telemetry config.
//
// The engine, runner and cache record under the instrumentation scopes
// below through the otel globals, so they stay no-ops until Setup runs.
// Prometheus metrics live in a registry owned by the Provider and are
// served together with the default registry's collectors.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/AleutianBayes/services/inference/config"
)

// Instrumentation scopes of the bayes packages.
const (
	ScopeElimination = "aleutian.bayes.elimination"
	ScopeRunner      = "aleutian.bayes.runner"
	ScopeCache       = "aleutian.bayes.cache"
)

// Exporter names accepted in config.TelemetryConfig.
const (
	ExporterNone       = "none"
	ExporterStdout     = "stdout"
	ExporterOTLP       = "otlp"
	ExporterPrometheus = "prometheus"
)

var (
	// ErrNilContext indicates Setup was called with a nil context.
	ErrNilContext = errors.New("telemetry: context must not be nil")

	// ErrUnknownExporter indicates an unsupported exporter name.
	ErrUnknownExporter = errors.New("telemetry: unknown exporter")
)

// Provider owns the SDK providers installed by Setup.
type Provider struct {
	traces  *sdktrace.TracerProvider
	metrics *sdkmetric.MeterProvider
	handler http.Handler
}

// Setup builds trace and metric providers from tc and installs them as the
// otel globals.
//
// Description:
//
//	An exporter set to "none" leaves that global untouched. Traces are
//	sampled at tc.SampleRatio unless the parent span decided already.
//	With the Prometheus exporter, MetricsHandler serves the bayes
//	instruments alongside the default Prometheus registry.
//
// Inputs:
//   - ctx: Used to dial the OTLP receiver. Must not be nil.
//   - tc: The telemetry section of the service config.
//   - version: Reported as service.version.
//
// Outputs:
//   - *Provider: Call Shutdown on exit to flush spans and metrics.
//   - error: ErrNilContext, ErrUnknownExporter or exporter creation errors.
//
// Thread Safety: Call once at startup.
func Setup(ctx context.Context, tc config.TelemetryConfig, version string) (*Provider, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	res := resource.NewWithAttributes("",
		attribute.String("service.name", tc.ServiceName),
		attribute.String("service.version", version),
	)

	p := &Provider{}
	if tc.TraceExporter != ExporterNone {
		exporter, err := spanExporter(ctx, tc)
		if err != nil {
			return nil, err
		}
		p.traces = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tc.SampleRatio))),
		)
		otel.SetTracerProvider(p.traces)
	}

	if tc.MetricExporter != ExporterNone {
		reader, handler, err := metricReader(tc.MetricExporter)
		if err != nil {
			_ = p.Shutdown(ctx)
			return nil, err
		}
		p.handler = handler
		p.metrics = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
		otel.SetMeterProvider(p.metrics)
	}
	return p, nil
}

// MetricsHandler serves /metrics, or returns nil unless the Prometheus
// exporter is configured.
func (p *Provider) MetricsHandler() http.Handler {
	if p == nil {
		return nil
	}
	return p.handler
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.traces != nil {
		errs = append(errs, p.traces.Shutdown(ctx))
	}
	if p.metrics != nil {
		errs = append(errs, p.metrics.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func spanExporter(ctx context.Context, tc config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch tc.TraceExporter {
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(tc.OTLPEndpoint)}
		if tc.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case ExporterStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("%w: trace exporter %q", ErrUnknownExporter, tc.TraceExporter)
	}
	if err != nil {
		return nil, fmt.Errorf("telemetry: %s trace exporter: %w", tc.TraceExporter, err)
	}
	return exporter, nil
}

// metricReader returns the reader for name and, for Prometheus, the handler
// that serves it.
func metricReader(name string) (sdkmetric.Reader, http.Handler, error) {
	switch name {
	case ExporterPrometheus:
		registry := prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return nil, nil, fmt.Errorf("telemetry: prometheus exporter: %w", err)
		}
		gatherers := prometheus.Gatherers{prometheus.DefaultGatherer, registry}
		return exporter, promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}), nil
	case ExporterStdout:
		exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("telemetry: stdout metric exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exporter), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: metric exporter %q", ErrUnknownExporter, name)
	}
}
