// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package predotel provides OpenTelemetry instrumentation for a predictor
// server. It implements the [predictor.RequestHook] interface to add
// distributed tracing and metrics to request handling.
//
// Usage:
//
//	server, _ := predictor.NewServer(opts)
//	predotel.InstrumentServer(server, predotel.DefaultConfig())
package predotel

import (
	"context"
	"time"

	"github.com/Query-farm/predictor/predictor"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Query-farm/predictor"

// Config configures OpenTelemetry instrumentation for a predictor server.
type Config struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// Propagator extracts trace context from transport metadata.
	// Defaults to otel.GetTextMapPropagator().
	Propagator propagation.TextMapPropagator
	// EnableTracing enables span creation. Default true.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording. Default true.
	EnableMetrics bool
	// RecordExceptions calls RecordError on the span for failed requests.
	// Default true.
	RecordExceptions bool
	// ServiceName defaults to Server.ServiceName().
	ServiceName string
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns a Config with tracing and metrics enabled.
// Providers and propagator are resolved from the global OTel SDK at
// instrumentation time.
func DefaultConfig() Config {
	return Config{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
	}
}

// InstrumentServer attaches the hook via [predictor.Server.SetRequestHook].
func InstrumentServer(server *predictor.Server, cfg Config) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = server.ServiceName()
	}
	server.SetRequestHook(NewHook(cfg))
}

// NewHook builds the hook without installing it.
func NewHook(cfg Config) predictor.RequestHook {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "predictor"
	}

	h := &hook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}
	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		h.requests, _ = meter.Int64Counter("predictor.requests",
			metric.WithUnit("{request}"),
			metric.WithDescription("Number of prediction requests by outcome"),
		)
		h.duration, _ = meter.Float64Histogram("predictor.request.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of prediction requests"),
		)
		h.sequences, _ = meter.Int64Counter("predictor.sequences",
			metric.WithUnit("{sequence}"),
			metric.WithDescription("Number of sequences in validated requests"),
		)
	}
	return h
}

type hook struct {
	cfg       Config
	tracer    trace.Tracer
	requests  metric.Int64Counter
	duration  metric.Float64Histogram
	sequences metric.Int64Counter
}

type spanToken struct {
	span      trace.Span
	startTime time.Time
}

// OnRequestStart extracts parent trace context and starts a server span.
func (h *hook) OnRequestStart(ctx context.Context, info predictor.RequestInfo) (context.Context, predictor.HookToken) {
	if h.cfg.Propagator != nil && info.TransportMetadata != nil {
		ctx = h.cfg.Propagator.Extract(ctx, propagation.MapCarrier(info.TransportMetadata))
	}
	if !h.cfg.EnableTracing {
		return ctx, &spanToken{startTime: time.Now()}
	}

	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "predictor"),
		attribute.String("rpc.service", h.cfg.ServiceName),
		attribute.String("predictor.request_id", info.RequestID),
		attribute.String("predictor.transport", info.Transport),
	}
	if info.RemoteAddr != "" {
		attrs = append(attrs, attribute.String("net.peer.address", info.RemoteAddr))
	}
	if v := info.TransportMetadata["user_agent"]; v != "" {
		attrs = append(attrs, attribute.String("user_agent.original", v))
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)

	ctx, span := h.tracer.Start(ctx, "predictor/predict",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	return ctx, &spanToken{span: span, startTime: time.Now()}
}

// OnRequestEnd records metrics and span attributes, then ends the span.
func (h *hook) OnRequestEnd(ctx context.Context, token predictor.HookToken, info predictor.RequestInfo, stats *predictor.RequestStatistics, outcome predictor.Outcome, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}
	duration := time.Since(st.startTime)

	if h.cfg.EnableMetrics {
		attrs := metric.WithAttributes(
			attribute.String("rpc.service", h.cfg.ServiceName),
			attribute.String("predictor.transport", info.Transport),
			attribute.String("predictor.outcome", outcome.String()),
		)
		if h.requests != nil {
			h.requests.Add(ctx, 1, attrs)
		}
		if h.duration != nil {
			h.duration.Record(ctx, duration.Seconds(), attrs)
		}
		if h.sequences != nil && stats != nil && stats.Sequences > 0 {
			h.sequences.Add(ctx, stats.Sequences, attrs)
		}
	}

	if st.span == nil || !st.span.IsRecording() {
		return
	}
	st.span.SetAttributes(attribute.String("predictor.outcome", outcome.String()))
	if stats != nil {
		st.span.SetAttributes(
			attribute.Int64("predictor.tasks", stats.Tasks),
			attribute.Int64("predictor.sequences", stats.Sequences),
			attribute.Int64("predictor.input_bytes", stats.InputBytes),
			attribute.Int64("predictor.output_bytes", stats.OutputBytes),
		)
	}
	if err != nil {
		st.span.SetStatus(codes.Error, err.Error())
		if h.cfg.RecordExceptions {
			st.span.RecordError(err)
		}
	} else {
		st.span.SetStatus(codes.Ok, "")
	}
	st.span.End()
}
