// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package prometrics implements a metrics.Client backed by a
// Prometheus registry.
package prometrics

import (
	"fmt"
	"net/http"

	"github.com/grailbio/stencil/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes all metric names.
const DefaultNamespace = "stencil"

// Client is a metrics.Client that registers every declared metric
// with a Prometheus registry.
type Client struct {
	reg        *prometheus.Registry
	gauges     map[string]*prometheus.GaugeVec
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewClient returns a client that registers the declared metrics,
// prefixed by namespace, with reg. Every metric carries the constant
// labels in labels. If reg is nil, a new registry is created.
func NewClient(reg *prometheus.Registry, namespace string, labels map[string]string) (*Client, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := prometheus.WrapRegistererWith(prometheus.Labels(labels), reg)
	c := &Client{
		reg:        reg,
		gauges:     make(map[string]*prometheus.GaugeVec),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	for name, opts := range metrics.Gauges {
		gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      opts.Help,
		}, opts.Labels)
		if err := r.Register(gv); err != nil {
			return nil, fmt.Errorf("register gauge %s: %v", name, err)
		}
		c.gauges[name] = gv
	}
	for name, opts := range metrics.Counters {
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      opts.Help,
		}, opts.Labels)
		if err := r.Register(cv); err != nil {
			return nil, fmt.Errorf("register counter %s: %v", name, err)
		}
		c.counters[name] = cv
	}
	for name, opts := range metrics.Histograms {
		hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name,
			Help:      opts.Help,
			Buckets:   opts.Buckets,
		}, opts.Labels)
		if err := r.Register(hv); err != nil {
			return nil, fmt.Errorf("register histogram %s: %v", name, err)
		}
		c.histograms[name] = hv
	}
	return c, nil
}

// Handler returns an HTTP handler that serves the registry in the
// Prometheus exposition format.
func (c *Client) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Registry returns the client's registry.
func (c *Client) Registry() *prometheus.Registry {
	return c.reg
}

// GetGauge implements metrics.Client. Label sets are validated by
// package metrics before reaching the client.
func (c *Client) GetGauge(name string, labels map[string]string) metrics.Gauge {
	return c.gauges[name].With(labels)
}

// GetCounter implements metrics.Client.
func (c *Client) GetCounter(name string, labels map[string]string) metrics.Counter {
	return c.counters[name].With(labels)
}

// GetHistogram implements metrics.Client.
func (c *Client) GetHistogram(name string, labels map[string]string) metrics.Histogram {
	return c.histograms[name].With(labels)
}
