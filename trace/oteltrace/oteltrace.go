// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package oteltrace implements a trace.Tracer that records spans with
// OpenTelemetry.
package oteltrace

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/stencil/trace"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	apitrace "go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/grailbio/stencil"

// Tracer forwards trace events to an OpenTelemetry tracer.
type Tracer struct {
	tracer apitrace.Tracer
}

// New returns a Tracer whose spans are created by provider.
func New(provider apitrace.TracerProvider) *Tracer {
	return &Tracer{tracer: provider.Tracer(instrumentation)}
}

// Emit implements trace.Tracer.
func (t *Tracer) Emit(ctx context.Context, e trace.Event) (context.Context, error) {
	switch e.Kind {
	case trace.StartEvent:
		ctx, _ = t.tracer.Start(ctx, e.Span.Name,
			apitrace.WithTimestamp(e.Time),
			apitrace.WithAttributes(
				attribute.String("stencil.kind", e.Span.Kind.String()),
				attribute.String("stencil.id", e.Span.ID),
			))
	case trace.EndEvent:
		apitrace.SpanFromContext(ctx).End(apitrace.WithTimestamp(e.Time))
	case trace.NoteEvent:
		apitrace.SpanFromContext(ctx).SetAttributes(attribute.String(e.Key, fmt.Sprint(e.Value)))
	case trace.ErrorEvent:
		span := apitrace.SpanFromContext(ctx)
		if err, ok := e.Value.(error); ok {
			span.RecordError(err, apitrace.WithTimestamp(e.Time))
			span.SetStatus(codes.Error, err.Error())
		}
	default:
		return ctx, fmt.Errorf("unknown event kind %d", e.Kind)
	}
	return ctx, nil
}

// NewStdoutProvider returns a tracer provider that writes finished
// spans as JSON to w. The caller should shut down the provider to
// flush pending spans.
func NewStdoutProvider(w io.Writer, service string) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(attribute.String("service.name", service)))
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	), nil
}
