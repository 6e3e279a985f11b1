// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"github.com/grailbio/base/sync/once"
	"github.com/grailbio/stencil/locality"
	"github.com/grailbio/stencil/log"
	"github.com/grailbio/stencil/metrics"
	"github.com/grailbio/stencil/partition"
	"github.com/grailbio/stencil/trace"
)

// OnceConfig memoizes the first call of the following methods to the
// underlying config: Logger, Allocator, Cluster, Metrics, and Tracer.
// Each of these mints a process-wide object that must be shared by
// everything that uses the configuration.
type OnceConfig struct {
	Config

	loggerOnce once.Task
	logger     *log.Logger

	allocatorOnce once.Task
	allocator     *partition.Allocator

	clusterOnce once.Task
	cluster     *locality.Cluster

	metricsOnce once.Task
	metrics     metrics.Client

	tracerOnce once.Task
	tracer     trace.Tracer
}

// Once constructs a new OnceConfig using the provided
// underlying configuration.
func Once(cfg Config) *OnceConfig {
	return &OnceConfig{Config: cfg}
}

// Logger returns the result of the first call to the underlying
// configuration's Logger.
func (o *OnceConfig) Logger() (*log.Logger, error) {
	err := o.loggerOnce.Do(func() (err error) {
		o.logger, err = o.Config.Logger()
		return
	})
	return o.logger, err
}

// Allocator returns the result of the first call to the underlying
// configuration's Allocator.
func (o *OnceConfig) Allocator() (*partition.Allocator, error) {
	err := o.allocatorOnce.Do(func() (err error) {
		o.allocator, err = o.Config.Allocator()
		return
	})
	return o.allocator, err
}

// Cluster returns the result of the first call to the underlying
// configuration's Cluster.
func (o *OnceConfig) Cluster() (*locality.Cluster, error) {
	err := o.clusterOnce.Do(func() (err error) {
		o.cluster, err = o.Config.Cluster()
		return
	})
	return o.cluster, err
}

// Metrics returns the result of the first call to the underlying
// configuration's Metrics.
func (o *OnceConfig) Metrics() (metrics.Client, error) {
	err := o.metricsOnce.Do(func() (err error) {
		o.metrics, err = o.Config.Metrics()
		return
	})
	return o.metrics, err
}

// Tracer returns the result of the first call to the underlying
// configuration's Tracer.
func (o *OnceConfig) Tracer() (trace.Tracer, error) {
	err := o.tracerOnce.Do(func() (err error) {
		o.tracer, err = o.Config.Tracer()
		return
	})
	return o.tracer, err
}
