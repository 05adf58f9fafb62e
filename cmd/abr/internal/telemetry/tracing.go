// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry records what a workflow did: an OpenTelemetry span per
// pipeline step, exported to a local file, and a Prometheus textfile with
// the outcome of the last run of each workflow.
//
// Both sinks are optional. With no trace file the tracer is a no-op, and
// with no metrics directory WriteTextfile does nothing.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the instrumentation scope of every abr span.
const TracerName = "github.com/AleutianAI/abr"

// TracingConfig configures NewTracing.
type TracingConfig struct {
	// File receives the spans as JSON. Empty disables tracing.
	File string

	ServiceName    string
	ServiceVersion string
}

// Tracing holds the tracer used by the pipelines and its shutdown hook.
type Tracing struct {
	Tracer   trace.Tracer
	shutdown func(context.Context) error
}

// NoopTracing returns a Tracing that records nothing.
func NoopTracing() *Tracing {
	return &Tracing{
		Tracer:   noop.NewTracerProvider().Tracer(TracerName),
		shutdown: func(context.Context) error { return nil },
	}
}

// NewTracing sets up span export to cfg.File.
//
// # Outputs
//
//   - *Tracing: ready to use, noop when cfg.File is empty
//   - error: if the trace file or exporter cannot be created
func NewTracing(cfg TracingConfig) (*Tracing, error) {
	if cfg.File == "" {
		return NoopTracing(), nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "abr"
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	return &Tracing{
		Tracer: tp.Tracer(TracerName),
		shutdown: func(ctx context.Context) error {
			return errors.Join(tp.Shutdown(ctx), f.Close())
		},
	}, nil
}

// Shutdown flushes pending spans and closes the trace file.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.shutdown == nil {
		return nil
	}
	return t.shutdown(ctx)
}

// Step runs fn inside a span called name. A returned error is recorded on
// the span and returned unchanged.
func Step(ctx context.Context, tracer trace.Tracer, name string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(TracerName)
	}
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
