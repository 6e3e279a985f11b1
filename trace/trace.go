// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package trace provides context-scoped tracing of stencil runs.
// Events are named by a span; spans form a tree whose root is a run
// and whose children are per-node work, sliding window stalls,
// migrations and transport calls. Tracing metadata is propagated
// through Go's context mechanism: each operation that starts a span
// is given a context representing that span, and package functions
// emit events to the current span of a context.
//
// Package trace only defines the event model. Events are delivered to
// a Tracer installed with WithTracer; package oteltrace provides one
// backed by OpenTelemetry.
package trace

import (
	"context"
	"time"
)

// Kind is the type of spans.
type Kind int

const (
	// Run is the span type for a whole stencil run.
	Run Kind = iota
	// Work is the span type for one node's time loop.
	Work
	// Window is the span type for a stall on the sliding window.
	Window
	// Migration is the span type for a partition migration.
	Migration
	// Transport is the span type for a remote call.
	Transport
)

var kindNames = [...]string{
	Run:       "run",
	Work:      "work",
	Window:    "window",
	Migration: "migration",
	Transport: "transport",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Span identifies a span by its ID and its parent's ID. The zero
// Span is the root span.
type Span struct {
	Parent, ID string
	Kind       Kind
	Name       string
}

var nopFunc = func() {}

// Start traces the beginning of a span of the indicated kind, with
// the given ID and name. Start returns a new context for this span:
// notes on the context are associated with the fresh span, and new
// spans become its children. The returned function ends the span.
func Start(ctx context.Context, kind Kind, id, name string) (outctx context.Context, done func()) {
	t, ok := tracer(ctx)
	if !ok {
		return ctx, nopFunc
	}
	// The root span is the zero value.
	parent, _ := ctx.Value(spanKey{}).(Span)
	span := Span{Parent: parent.ID, ID: id, Kind: kind, Name: name}
	ctx = context.WithValue(ctx, spanKey{}, span)
	spanCtx, err := t.Emit(ctx, Event{Time: time.Now(), Span: span, Kind: StartEvent})
	if err != nil {
		spanCtx = ctx
	}
	return spanCtx, func() {
		_, _ = t.Emit(spanCtx, Event{Time: time.Now(), Span: span, Kind: EndEvent})
	}
}

// Note emits the provided key and value as a trace event associated
// with the span of the provided context.
func Note(ctx context.Context, key string, value interface{}) {
	t, ok := tracer(ctx)
	if !ok {
		return
	}
	span, _ := ctx.Value(spanKey{}).(Span)
	_, _ = t.Emit(ctx, Event{
		Time:  time.Now(),
		Span:  span,
		Kind:  NoteEvent,
		Key:   key,
		Value: value,
	})
}

// Error records err on the span of the provided context. Nil errors
// are ignored.
func Error(ctx context.Context, err error) {
	if err == nil {
		return
	}
	t, ok := tracer(ctx)
	if !ok {
		return
	}
	span, _ := ctx.Value(spanKey{}).(Span)
	_, _ = t.Emit(ctx, Event{Time: time.Now(), Span: span, Kind: ErrorEvent, Value: err})
}
