// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package metrics defines the metrics exported by the stencil runtime
// and a context-scoped client through which they are emitted. When no
// client is attached to a context, all metrics are no-ops.
package metrics

import (
	"context"
	"fmt"
)

// Gauge is a metric that can be set to arbitrary values.
type Gauge interface {
	// Set updates the value of the gauge.
	Set(float64)
	// Inc increments the Gauge by 1.
	Inc()
	// Dec decrements the Gauge by 1.
	Dec()
	// Add adds the given value to the Gauge.
	Add(float64)
	// Sub subtracts the given value from the Gauge.
	Sub(float64)
}

// Counter is a metric that can only increase in value.
type Counter interface {
	// Inc adds one to the counter.
	Inc()
	// Add adds the given value to the counter. It panics if the value
	// is negative.
	Add(float64)
}

// Histogram records observations into preconfigured buckets.
type Histogram interface {
	// Observe adds a sample observation to the histogram.
	Observe(float64)
}

type labelSet []string

type gaugeOpts struct {
	Labels labelSet
	Help   string
}

type counterOpts struct {
	Labels labelSet
	Help   string
}

type histogramOpts struct {
	Labels  labelSet
	Help    string
	Buckets []float64
}

// completeLabels tells whether labels assigns exactly the labels in set.
func completeLabels(set labelSet, labels map[string]string) bool {
	if len(labels) != len(set) {
		return false
	}
	for _, label := range set {
		if _, ok := labels[label]; !ok {
			return false
		}
	}
	return true
}

func getGauge(ctx context.Context, name string, labels map[string]string) Gauge {
	client, ok := clientOf(ctx)
	if !ok {
		return nopGauge{}
	}
	opts, ok := Gauges[name]
	if !ok {
		panic(fmt.Sprintf("undeclared gauge %s", name))
	}
	if !completeLabels(opts.Labels, labels) {
		panic(fmt.Sprintf("gauge %s: expected labels %v, got %v", name, opts.Labels, labels))
	}
	return client.GetGauge(name, labels)
}

func getCounter(ctx context.Context, name string, labels map[string]string) Counter {
	client, ok := clientOf(ctx)
	if !ok {
		return nopCounter{}
	}
	opts, ok := Counters[name]
	if !ok {
		panic(fmt.Sprintf("undeclared counter %s", name))
	}
	if !completeLabels(opts.Labels, labels) {
		panic(fmt.Sprintf("counter %s: expected labels %v, got %v", name, opts.Labels, labels))
	}
	return client.GetCounter(name, labels)
}

func getHistogram(ctx context.Context, name string, labels map[string]string) Histogram {
	client, ok := clientOf(ctx)
	if !ok {
		return nopHistogram{}
	}
	opts, ok := Histograms[name]
	if !ok {
		panic(fmt.Sprintf("undeclared histogram %s", name))
	}
	if !completeLabels(opts.Labels, labels) {
		panic(fmt.Sprintf("histogram %s: expected labels %v, got %v", name, opts.Labels, labels))
	}
	return client.GetHistogram(name, labels)
}

// Client is a sink for metrics.
type Client interface {
	GetGauge(name string, labels map[string]string) Gauge
	GetCounter(name string, labels map[string]string) Counter
	GetHistogram(name string, labels map[string]string) Histogram
}

// NopClient is a metrics client that does nothing.
var NopClient Client = nopClient{}

type clientKey struct{}

// WithClient returns a context that emits metrics to the provided
// Client.
func WithClient(ctx context.Context, client Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, clientKey{}, client)
}

// On returns true if there is a Client associated with the provided
// context.
func On(ctx context.Context) bool {
	_, ok := clientOf(ctx)
	return ok
}

func clientOf(ctx context.Context) (Client, bool) {
	client, ok := ctx.Value(clientKey{}).(Client)
	return client, ok
}
