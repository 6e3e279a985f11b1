// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package promconfig configures metrics exported in the Prometheus
// exposition format.
package promconfig

import (
	"github.com/grailbio/stencil/config"
	"github.com/grailbio/stencil/metrics"
	"github.com/grailbio/stencil/metrics/prometrics"
)

func init() {
	config.Register(config.Metrics, "prometheus", "namespace", "export metrics to Prometheus under the given namespace (default stencil)",
		func(cfg config.Config, arg string) (config.Config, error) {
			if arg == "" {
				arg = prometrics.DefaultNamespace
			}
			return &promMetrics{cfg, arg}, nil
		},
	)
}

type promMetrics struct {
	config.Config
	namespace string
}

// Metrics returns a *prometrics.Client whose metrics carry the
// configured labels. Its Handler serves the exposition.
func (c *promMetrics) Metrics() (metrics.Client, error) {
	client, err := prometrics.NewClient(nil, c.namespace, c.Labels())
	if err != nil {
		return nil, err
	}
	return client, nil
}
