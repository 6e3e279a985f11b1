// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package metrics

import (
	"context"
)

var (
	Counters = map[string]counterOpts{
		"partitions_computed_count": {
			Help: "Count of partitions computed by heat steps.",
		},
		"boundaries_sent_count": {
			Help:   "Count of boundary partitions sent to neighbors.",
			Labels: []string{"direction"},
		},
		"migrations_completed_count": {
			Help: "Count of completed partition migrations.",
		},
		"migrations_failed_count": {
			Help: "Count of failed partition migrations.",
		},
	}
	Gauges = map[string]gaugeOpts{
		"window_floor": {
			Help:   "Latest step signalled complete to the sliding window.",
			Labels: []string{"component"},
		},
		"objects_live": {
			Help: "Number of partition objects held by the node.",
		},
		"allocator_free_buffers": {
			Help: "Number of buffers pooled by the node's allocator.",
		},
	}
	Histograms = map[string]histogramOpts{
		"fetch_latency_seconds": {
			Help:    "Partition fetch latency in seconds.",
			Labels:  []string{"kind"},
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		},
		"step_latency_seconds": {
			Help:    "Latency of a single partition's heat step in seconds.",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
		},
	}
)

// GetPartitionsComputedCountCounter returns a Counter to set metric partitions_computed_count (count of partitions computed by heat steps).
func GetPartitionsComputedCountCounter(ctx context.Context) Counter {
	return getCounter(ctx, "partitions_computed_count", nil)
}

// GetBoundariesSentCountCounter returns a Counter to set metric boundaries_sent_count (count of boundary partitions sent to neighbors).
func GetBoundariesSentCountCounter(ctx context.Context, direction string) Counter {
	return getCounter(ctx, "boundaries_sent_count", map[string]string{"direction": direction})
}

// GetMigrationsCompletedCountCounter returns a Counter to set metric migrations_completed_count (count of completed partition migrations).
func GetMigrationsCompletedCountCounter(ctx context.Context) Counter {
	return getCounter(ctx, "migrations_completed_count", nil)
}

// GetMigrationsFailedCountCounter returns a Counter to set metric migrations_failed_count (count of failed partition migrations).
func GetMigrationsFailedCountCounter(ctx context.Context) Counter {
	return getCounter(ctx, "migrations_failed_count", nil)
}

// GetWindowFloorGauge returns a Gauge to set metric window_floor (latest step signalled complete to the sliding window).
func GetWindowFloorGauge(ctx context.Context, component string) Gauge {
	return getGauge(ctx, "window_floor", map[string]string{"component": component})
}

// GetObjectsLiveGauge returns a Gauge to set metric objects_live (number of partition objects held by the node).
func GetObjectsLiveGauge(ctx context.Context) Gauge {
	return getGauge(ctx, "objects_live", nil)
}

// GetAllocatorFreeBuffersGauge returns a Gauge to set metric allocator_free_buffers (number of buffers pooled by the node's allocator).
func GetAllocatorFreeBuffersGauge(ctx context.Context) Gauge {
	return getGauge(ctx, "allocator_free_buffers", nil)
}

// GetFetchLatencySecondsHistogram returns a Histogram to set metric fetch_latency_seconds (partition fetch latency in seconds).
func GetFetchLatencySecondsHistogram(ctx context.Context, kind string) Histogram {
	return getHistogram(ctx, "fetch_latency_seconds", map[string]string{"kind": kind})
}

// GetStepLatencySecondsHistogram returns a Histogram to set metric step_latency_seconds (latency of a single partition's heat step in seconds).
func GetStepLatencySecondsHistogram(ctx context.Context) Histogram {
	return getHistogram(ctx, "step_latency_seconds", nil)
}
