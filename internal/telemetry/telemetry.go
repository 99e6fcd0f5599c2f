// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package telemetry installs the OpenTelemetry SDK providers for the
// predictor process.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ErrUnknownExporter is returned for an exporter name Init does not know.
var ErrUnknownExporter = errors.New("telemetry: unknown exporter")

type Config struct {
	ServiceName    string
	ServiceVersion string
	// TraceExporter is none, stdout or otlp.
	TraceExporter string
	// MetricExporter is none, stdout or prometheus.
	MetricExporter string
	// OTLPEndpoint is a host:port gRPC receiver; the connection is insecure.
	OTLPEndpoint string
	// Writer receives stdout exporter output. Defaults to os.Stdout.
	Writer io.Writer
}

// Telemetry holds the installed providers.
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider

	metrics  http.Handler
	shutdown []func(context.Context) error
}

// Init builds the providers selected by cfg and installs them as the otel
// globals, together with a W3C trace-context propagator. Providers left at
// "none" stay nil and the globals keep their no-op defaults.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	res := resource.NewWithAttributes("",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)
	t := &Telemetry{}

	switch cfg.TraceExporter {
	case "", "none":
	case "stdout", "otlp":
		var exporter sdktrace.SpanExporter
		var err error
		if cfg.TraceExporter == "otlp" {
			exporter, err = otlptracegrpc.New(ctx,
				otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
				otlptracegrpc.WithInsecure(),
			)
		} else {
			exporter, err = stdouttrace.New(stdouttrace.WithWriter(cfg.Writer))
		}
		if err != nil {
			return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
		}
		t.TracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(t.TracerProvider)
		t.shutdown = append(t.shutdown, t.TracerProvider.Shutdown)
	default:
		return nil, fmt.Errorf("%w: trace %q", ErrUnknownExporter, cfg.TraceExporter)
	}

	switch cfg.MetricExporter {
	case "", "none":
	case "prometheus":
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exporter, err := promexporter.New(promexporter.WithRegisterer(reg))
		if err != nil {
			t.Shutdown(ctx)
			return nil, fmt.Errorf("telemetry: prometheus exporter: %w", err)
		}
		t.metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		t.MeterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
	case "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer))
		if err != nil {
			t.Shutdown(ctx)
			return nil, fmt.Errorf("telemetry: stdout metric exporter: %w", err)
		}
		t.MeterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		)
	default:
		t.Shutdown(ctx)
		return nil, fmt.Errorf("%w: metric %q", ErrUnknownExporter, cfg.MetricExporter)
	}
	if t.MeterProvider != nil {
		otel.SetMeterProvider(t.MeterProvider)
		t.shutdown = append(t.shutdown, t.MeterProvider.Shutdown)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return t, nil
}

// MetricsHandler serves the Prometheus registry, or nil when the prometheus
// exporter is not selected.
func (t *Telemetry) MetricsHandler() http.Handler {
	return t.metrics
}

// Shutdown flushes and stops every provider Init started.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	t.shutdown = nil
	return errors.Join(errs...)
}
