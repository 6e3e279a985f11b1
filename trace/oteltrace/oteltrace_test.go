// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package oteltrace

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/grailbio/stencil/trace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	ctx := trace.WithTracer(context.Background(), New(provider))

	ctx1, done1 := trace.Start(ctx, trace.Run, "run-1", "run")
	ctx2, done2 := trace.Start(ctx1, trace.Migration, "n0/x", "migrate")
	trace.Note(ctx2, "target", 2)
	trace.Error(ctx2, errors.New("pinned"))
	done2()
	done1()

	spans := rec.Ended()
	if got, want := len(spans), 2; got != want {
		t.Fatalf("got %v spans, want %v", got, want)
	}
	migrate, run := spans[0], spans[1]
	if got, want := migrate.Name(), "migrate"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := migrate.Parent().SpanID(), run.SpanContext().SpanID(); got != want {
		t.Errorf("got parent %v, want %v", got, want)
	}
	var sawTarget bool
	for _, kv := range migrate.Attributes() {
		if kv.Key == "target" && kv.Value.AsString() == "2" {
			sawTarget = true
		}
	}
	if !sawTarget {
		t.Errorf("missing target attribute in %v", migrate.Attributes())
	}
	if got, want := len(migrate.Events()), 1; got != want {
		t.Errorf("got %v events, want %v", got, want)
	}
}

func TestStdoutProvider(t *testing.T) {
	var b bytes.Buffer
	provider, err := NewStdoutProvider(&b, "stencil-test")
	if err != nil {
		t.Fatal(err)
	}
	ctx := trace.WithTracer(context.Background(), New(provider))
	_, done := trace.Start(ctx, trace.Work, "stepper-0", "work")
	done()
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(b.String(), `"Name":"work"`) {
		t.Errorf("span not exported: %s", b.String())
	}
}
