// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"errors"

	"github.com/grailbio/stencil/trace"
	"github.com/grailbio/stencil/trace/localtrace"
)

func init() {
	Register(Tracer, "local", "path", "write spans in the Chrome tracing format to the given file when each run completes",
		func(cfg Config, arg string) (Config, error) {
			if arg == "" {
				return nil, errors.New("trace file not provided")
			}
			return &localTracer{cfg, arg}, nil
		},
	)
}

type localTracer struct {
	Config
	path string
}

func (c *localTracer) Tracer() (trace.Tracer, error) {
	t, err := localtrace.New(c.path)
	if err != nil {
		return nil, err
	}
	return t, nil
}
