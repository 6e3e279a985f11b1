// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"github.com/grailbio/stencil/log"
	"github.com/grailbio/stencil/metrics"
	"github.com/grailbio/stencil/trace"
)

func init() {
	Register(Logger, "off", "", "turn logging off",
		func(cfg Config, arg string) (Config, error) {
			return &loggerOff{cfg}, nil
		},
	)
	Register(Metrics, "off", "", "turn metrics off",
		func(cfg Config, arg string) (Config, error) {
			return &metricsOff{cfg}, nil
		},
	)
	Register(Tracer, "off", "", "turn tracing off",
		func(cfg Config, arg string) (Config, error) {
			return &tracerOff{cfg}, nil
		},
	)
}

type loggerOff struct {
	Config
}

// A nil logger is just an off logger.
func (c *loggerOff) Logger() (*log.Logger, error) {
	return nil, nil
}

type metricsOff struct {
	Config
}

func (c *metricsOff) Metrics() (metrics.Client, error) {
	return metrics.NopClient, nil
}

type tracerOff struct {
	Config
}

func (c *tracerOff) Tracer() (trace.Tracer, error) {
	return nil, nil
}
