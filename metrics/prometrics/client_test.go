// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package prometrics

import (
	"context"
	"io/ioutil"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/grailbio/stencil/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestClient(t *testing.T) {
	client, err := NewClient(nil, DefaultNamespace, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := metrics.WithClient(context.Background(), client)
	metrics.GetPartitionsComputedCountCounter(ctx).Add(3)
	metrics.GetBoundariesSentCountCounter(ctx, "left").Inc()
	metrics.GetWindowFloorGauge(ctx, "stepper-0").Set(20)
	metrics.GetFetchLatencySecondsHistogram(ctx, "full").Observe(0.002)

	if got, want := testutil.ToFloat64(client.counters["partitions_computed_count"]), 3.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := testutil.ToFloat64(client.gauges["window_floor"].WithLabelValues("stepper-0")), 20.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	srv := httptest.NewServer(client.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`stencil_boundaries_sent_count{direction="left"} 1`,
		`stencil_fetch_latency_seconds_count{kind="full"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("missing %q in exposition", want)
		}
	}
}

func TestConstLabels(t *testing.T) {
	client, err := NewClient(nil, "test", map[string]string{"node": "3"})
	if err != nil {
		t.Fatal(err)
	}
	ctx := metrics.WithClient(context.Background(), client)
	metrics.GetMigrationsCompletedCountCounter(ctx).Inc()
	families, err := client.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, f := range families {
		if f.GetName() != "test_migrations_completed_count" {
			continue
		}
		found = true
		labels := f.GetMetric()[0].GetLabel()
		if len(labels) != 1 || labels[0].GetName() != "node" || labels[0].GetValue() != "3" {
			t.Errorf("unexpected labels %v", labels)
		}
	}
	if !found {
		t.Error("test_migrations_completed_count not gathered")
	}
}

func TestOff(t *testing.T) {
	ctx := context.Background()
	if metrics.On(ctx) {
		t.Fatal("metrics on without a client")
	}
	// No client: these are no-ops.
	metrics.GetMigrationsFailedCountCounter(ctx).Inc()
	metrics.GetStepLatencySecondsHistogram(ctx).Observe(1)
}
