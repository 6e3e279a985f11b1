// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package localconfig provides an in-process cluster of localities
// running steppers.
package localconfig

import (
	"fmt"
	"strconv"

	"github.com/grailbio/stencil/config"
	"github.com/grailbio/stencil/locality"
	"github.com/grailbio/stencil/stepper"
)

func init() {
	config.Register(config.Cluster, "local", "localities", "run an in-process cluster with the given number of localities (default 1)",
		func(cfg config.Config, arg string) (config.Config, error) {
			n := 1
			if arg != "" {
				var err error
				if n, err = strconv.Atoi(arg); err != nil {
					return nil, fmt.Errorf("invalid locality count %q: %v", arg, err)
				}
			}
			if n < 1 {
				return nil, fmt.Errorf("invalid locality count %d", n)
			}
			return &cluster{cfg, n}, nil
		},
	)
}

type cluster struct {
	config.Config
	n int
}

func (c *cluster) Cluster() (*locality.Cluster, error) {
	alloc, err := c.Allocator()
	if err != nil {
		return nil, err
	}
	log, err := c.Logger()
	if err != nil {
		return nil, err
	}
	cluster, _ := locality.NewLocalCluster(c.n, alloc, log, stepper.Spawn)
	return cluster, nil
}
