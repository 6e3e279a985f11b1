// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package trace

import (
	"context"
	"time"
)

// EventKind is the type of trace event.
type EventKind int

const (
	// StartEvent is the start of a trace span.
	StartEvent EventKind = iota
	// EndEvent is the end of a trace span.
	EndEvent
	// NoteEvent is a note on the current span.
	NoteEvent
	// ErrorEvent records an error on the current span.
	ErrorEvent
)

// Event stores a single trace event. Each event has at least a
// timestamp, span, and an event kind. Other fields depend on the
// event kind.
type Event struct {
	// Time is the timestamp of the event, generated at its source.
	Time time.Time
	// Span is the span to which this event belongs.
	Span Span
	// Kind is the type of event.
	Kind EventKind
	// Key stores the key for NoteEvents.
	Key string
	// Value stores the value for NoteEvents and the error for
	// ErrorEvents.
	Value interface{}
}

// Tracers are sinks for trace events. Tracer implementations should
// not block: they are called synchronously.
type Tracer interface {
	// Emit is called to emit a new event to the tracer. For
	// StartEvents the returned context is used as the span's
	// context; it is ignored for other events.
	Emit(ctx context.Context, event Event) (context.Context, error)
}

type (
	tracerKey struct{}
	spanKey   struct{}
)

// WithTracer returns a context that emits trace events to the
// provided tracer.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		return ctx
	}
	return context.WithValue(ctx, tracerKey{}, t)
}

// On returns true if there is a current tracer associated with the
// provided context.
func On(ctx context.Context) bool {
	_, ok := tracer(ctx)
	return ok
}

func tracer(ctx context.Context) (Tracer, bool) {
	t, ok := ctx.Value(tracerKey{}).(Tracer)
	return t, ok
}
