// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package trace_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/grailbio/stencil/trace"
)

type chanTracer chan trace.Event

func (c chanTracer) Emit(ctx context.Context, e trace.Event) (context.Context, error) {
	c <- e
	return ctx, nil
}

func TestTrace(t *testing.T) {
	now := time.Now()
	tracer := make(chanTracer, 1024)
	ctx := trace.WithTracer(context.Background(), tracer)
	ctx1, done1 := trace.Start(ctx, trace.Run, "r", "run")
	trace.Note(ctx1, "nodes", 2)
	ctx2, done2 := trace.Start(ctx1, trace.Work, "w", "stepper-0")
	trace.Note(ctx2, "step", 3)
	done2()
	done1()

	expect := []trace.Event{
		{Kind: trace.StartEvent, Span: trace.Span{ID: "r", Kind: trace.Run, Name: "run"}},
		{Kind: trace.NoteEvent, Span: trace.Span{ID: "r", Kind: trace.Run, Name: "run"}, Key: "nodes", Value: 2},
		{Kind: trace.StartEvent, Span: trace.Span{Parent: "r", ID: "w", Kind: trace.Work, Name: "stepper-0"}},
		{Kind: trace.NoteEvent, Span: trace.Span{Parent: "r", ID: "w", Kind: trace.Work, Name: "stepper-0"}, Key: "step", Value: 3},
		{Kind: trace.EndEvent, Span: trace.Span{Parent: "r", ID: "w", Kind: trace.Work, Name: "stepper-0"}},
		{Kind: trace.EndEvent, Span: trace.Span{ID: "r", Kind: trace.Run, Name: "run"}},
	}
	for _, ex := range expect {
		var ev trace.Event
		select {
		case ev = <-tracer:
		default:
			t.Fatalf("failed to receive expected event %v", ex)
		}
		if ev.Time.Before(now) {
			t.Errorf("bad timestamp: got %v, expected time later or equal to %v", ev.Time, now)
		}
		now = ev.Time
		ev.Time = time.Time{}
		if !reflect.DeepEqual(ev, ex) {
			t.Errorf("got %+v, want %+v", ev, ex)
		}
	}
	select {
	case ev := <-tracer:
		t.Errorf("received excess event %v", ev)
	default:
	}
}

func TestOff(t *testing.T) {
	ctx := context.Background()
	if trace.On(ctx) {
		t.Fatal("tracing on without a tracer")
	}
	ctx2, done := trace.Start(ctx, trace.Run, "r", "run")
	if ctx2 != ctx {
		t.Error("expected unchanged context")
	}
	done()
}
