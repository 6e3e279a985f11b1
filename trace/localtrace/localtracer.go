// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package localtrace implements a trace.Tracer that writes spans to a
// local file in the Chrome tracing format, viewable with
// chrome://tracing or https://ui.perfetto.dev.
package localtrace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/grailbio/stencil/trace"
)

// Tracer accumulates completed spans and writes them to a file. Each
// Work span and its descendants are drawn as a separate process in
// the trace viewer, so that every node's time loop gets its own
// group; run spans share process 0.
type Tracer struct {
	mu         sync.Mutex
	pidCounter int32
	tidCounter int32
	tids       sync.Map
	trace      T

	path string
}

// New returns a new Tracer that writes to the file at path. The file
// is created (or truncated) to validate the path.
func New(path string) (*Tracer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	f.Close()
	return &Tracer{path: path}, nil
}

type key int

const (
	eventKey key = iota
	pidKey
)

func (k key) getEvent(ctx context.Context) (Event, error) {
	if event, ok := ctx.Value(k).(Event); ok {
		return event, nil
	}
	return Event{}, fmt.Errorf("no event found for key: %d", k)
}

// getPid returns the trace viewer process of a span: 0 for runs,
// the enclosing span's process if there is one, and a fresh process
// otherwise.
func (t *Tracer) getPid(ctx context.Context, span trace.Span) (context.Context, int) {
	switch {
	case span.Kind == trace.Run:
		return ctx, 0
	case ctx.Value(pidKey) != nil:
		return ctx, ctx.Value(pidKey).(int)
	default:
		pid := int(atomic.AddInt32(&t.pidCounter, 1))
		return context.WithValue(ctx, pidKey, pid), pid
	}
}

// getTid returns the trace viewer thread of the span with the given
// ID. Spans that share an ID are drawn on the same row.
func (t *Tracer) getTid(id string) int {
	tid, ok := t.tids.Load(id)
	if !ok {
		tid, _ = t.tids.LoadOrStore(id, int(atomic.AddInt32(&t.tidCounter, 1)))
	}
	return tid.(int)
}

// Flush writes the completed spans to the tracer's file. It may be
// called concurrently.
func (t *Tracer) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := os.Create(t.path)
	if err != nil {
		return err
	}
	if err := t.trace.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Path returns the location of the output trace file.
func (t *Tracer) Path() string {
	return t.path
}

// Emit implements trace.Tracer. Completed run spans flush the trace
// to its file.
func (t *Tracer) Emit(ctx context.Context, e trace.Event) (context.Context, error) {
	switch e.Kind {
	case trace.StartEvent:
		var pid int
		ctx, pid = t.getPid(ctx, e.Span)
		event := Event{
			Pid:  pid,
			Tid:  t.getTid(e.Span.ID),
			Ts:   e.Time.UnixNano() / 1000,
			Ph:   "X",
			Name: e.Span.Name,
			Cat:  e.Span.Kind.String(),
			Args: map[string]interface{}{"id": e.Span.ID},
		}
		return context.WithValue(ctx, eventKey, event), nil
	case trace.EndEvent:
		event, err := eventKey.getEvent(ctx)
		if err != nil {
			return ctx, err
		}
		t.mu.Lock()
		event.Dur = e.Time.UnixNano()/1000 - event.Ts
		t.trace.Events = append(t.trace.Events, event)
		t.mu.Unlock()
		if e.Span.Kind == trace.Run {
			return ctx, t.Flush()
		}
		return ctx, nil
	case trace.NoteEvent, trace.ErrorEvent:
		event, err := eventKey.getEvent(ctx)
		if err != nil {
			return ctx, err
		}
		key, value := e.Key, e.Value
		if e.Kind == trace.ErrorEvent {
			key, value = "error", fmt.Sprint(e.Value)
		}
		t.mu.Lock()
		event.Args[key] = value
		t.mu.Unlock()
		return ctx, nil
	default:
		return ctx, fmt.Errorf("unknown event kind %d", e.Kind)
	}
}

// Event is an event in the Chrome tracing format. See
// https://docs.google.com/document/d/1CvAClvFfyA5R-PhYUmn5OOQtYMH4h6I0nSsKchNAySU/preview
type Event struct {
	Pid  int                    `json:"pid"`
	Tid  int                    `json:"tid"`
	Ts   int64                  `json:"ts"`
	Ph   string                 `json:"ph"`
	Dur  int64                  `json:"dur,omitempty"`
	Name string                 `json:"name"`
	Cat  string                 `json:"cat,omitempty"`
	Args map[string]interface{} `json:"args"`
}

// T represents the JSON object format in the Chrome tracing format.
type T struct {
	Events []Event `json:"traceEvents"`
}

// Encode JSON encodes t into w.
func (t *T) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(t)
}

// Decode decodes the JSON object format read from r into t. Call
// this with a t zero value.
func (t *T) Decode(r io.Reader) error {
	return json.NewDecoder(r).Decode(t)
}
