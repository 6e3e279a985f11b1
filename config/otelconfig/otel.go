// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package otelconfig configures OpenTelemetry tracing.
package otelconfig

import (
	"os"

	"github.com/grailbio/stencil/config"
	"github.com/grailbio/stencil/trace"
	"github.com/grailbio/stencil/trace/oteltrace"
)

func init() {
	config.Register(config.Tracer, "stdout", "service", "write OpenTelemetry spans as JSON to standard error, tagged with the given service name (default stencil)",
		func(cfg config.Config, arg string) (config.Config, error) {
			if arg == "" {
				arg = "stencil"
			}
			return &stdoutTracer{cfg, arg}, nil
		},
	)
}

type stdoutTracer struct {
	config.Config
	service string
}

func (c *stdoutTracer) Tracer() (trace.Tracer, error) {
	provider, err := oteltrace.NewStdoutProvider(os.Stderr, c.service)
	if err != nil {
		return nil, err
	}
	return oteltrace.New(provider), nil
}
