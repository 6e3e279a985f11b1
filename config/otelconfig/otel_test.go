// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package otelconfig

import (
	"testing"

	"github.com/grailbio/stencil/config"
	"github.com/grailbio/stencil/trace/oteltrace"
)

func TestStdout(t *testing.T) {
	cfg, err := config.Parse([]byte("tracer: stdout,stencil-test"))
	if err != nil {
		t.Fatal(err)
	}
	tracer, err := cfg.Tracer()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tracer.(*oteltrace.Tracer); !ok {
		t.Errorf("got %T, want *oteltrace.Tracer", tracer)
	}
}
