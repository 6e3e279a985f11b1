// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stepper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/grailbio/stencil"
	"github.com/grailbio/stencil/errors"
	"github.com/grailbio/stencil/locality"
	"github.com/grailbio/stencil/partition"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"golang.org/x/sync/errgroup"
)

// serial computes nt steps of op over a ring of n elements
// initialized to their indices.
func serial(op stencil.Stencil, n, nt int) []float64 {
	u := make([]float64, n)
	for i := range u {
		u[i] = float64(i)
	}
	for t := 0; t < nt; t++ {
		next := make([]float64, n)
		for i := range next {
			next[i] = op(u[(i-1+n)%n], u[i], u[(i+1)%n])
		}
		u = next
	}
	return u
}

type testCluster struct {
	cluster  *locality.Cluster
	locals   []*locality.Local
	mu       sync.Mutex
	steppers map[string]*Stepper
}

func newTestCluster(nodes int, op stencil.Stencil) *testCluster {
	c := &testCluster{steppers: make(map[string]*Stepper)}
	c.cluster, c.locals = locality.NewLocalCluster(nodes, partition.NewAllocator(16), nil,
		func(l *locality.Local, name string, i, nodes int) (locality.Component, error) {
			s, err := New(l, name, i, nodes)
			if err != nil {
				return nil, err
			}
			s.Stencil = op
			c.mu.Lock()
			c.steppers[name] = s
			c.mu.Unlock()
			return s, nil
		})
	return c
}

func (c *testCluster) stepper(name string) *Stepper {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.steppers[name]
}

// start spawns a stepper on every node, runs them with localNP
// partitions each, and gathers the results in node order.
func (c *testCluster) start(ctx context.Context, params stencil.Params, localNP int, migrate *locality.Migration) ([][]partition.Addr, []float64, error) {
	n := len(c.locals)
	for i, l := range c.locals {
		if err := l.Spawn(ctx, "test", i, n); err != nil {
			return nil, nil, err
		}
	}
	addrs := make([][]partition.Addr, n)
	g, gctx := errgroup.WithContext(ctx)
	for i, l := range c.locals {
		i, l := i, l
		work := locality.Work{Params: params, LocalNP: localNP, Offset: i * localNP}
		if i == 0 {
			work.Migrate = migrate
		}
		g.Go(func() error {
			var err error
			addrs[i], err = l.Work(gctx, locality.Name("test", i), work)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	var values []float64
	for _, node := range addrs {
		for _, addr := range node {
			d, err := c.cluster.Fetch(ctx, addr, partition.Full)
			if err != nil {
				return nil, nil, err
			}
			values = append(values, d.Values()...)
			d.Release()
		}
	}
	for i, l := range c.locals {
		if err := l.Release(ctx, locality.Name("test", i)); err != nil {
			return nil, nil, err
		}
	}
	return addrs, values, nil
}

func (c *testCluster) run(ctx context.Context, t *testing.T, params stencil.Params, localNP int, migrate *locality.Migration) ([][]partition.Addr, []float64) {
	t.Helper()
	addrs, values, err := c.start(ctx, params, localNP, migrate)
	assert.NoError(t, err)
	return addrs, values
}

func params(nx, nt, nd int) stencil.Params {
	p := stencil.DefaultParams()
	p.NX, p.NT, p.ND = nx, nt, nd
	return p
}

func TestSinglePartition(t *testing.T) {
	ctx := context.Background()
	c := newTestCluster(1, nil)
	addrs, values := c.run(ctx, t, params(4, 1, 1), 1, nil)
	expect.EQ(t, values, []float64{2, 1, 2, 1})
	// Only the final partition remains.
	expect.EQ(t, c.locals[0].Len(), 1)
	assert.NoError(t, c.cluster.Free(ctx, addrs[0][0]))
	expect.EQ(t, c.locals[0].Len(), 0)
}

func TestNoSteps(t *testing.T) {
	c := newTestCluster(2, nil)
	_, values := c.run(context.Background(), t, params(2, 0, 1), 2, nil)
	expect.EQ(t, values, []float64{0, 1, 2, 3, 4, 5, 6, 7})
}

func TestMatchesSerial(t *testing.T) {
	for _, tc := range []struct {
		nodes, localNP, nx, nt, nd int
	}{
		{1, 1, 5, 7, 3},
		{1, 4, 3, 6, 2},
		{2, 1, 4, 5, 1},
		{2, 3, 3, 9, 2},
		{3, 1, 1, 6, 2},
		{3, 2, 1, 4, 10},
		{4, 2, 5, 12, 3},
	} {
		p := params(tc.nx, tc.nt, tc.nd)
		c := newTestCluster(tc.nodes, nil)
		addrs, got := c.run(context.Background(), t, p, tc.localNP, nil)
		want := serial(p.Stencil(), tc.nodes*tc.localNP*tc.nx, tc.nt)
		expect.EQ(t, got, want, tc)
		for i, l := range c.locals {
			expect.EQ(t, l.Len(), len(addrs[i]))
		}
	}
}

func TestWindowBound(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var (
		release = make(chan struct{})
		heat    = stencil.Heat(.5, 1, 1)
	)
	c := newTestCluster(1, func(l, m, r float64) float64 {
		<-release
		return heat(l, m, r)
	})
	p := params(2, 10, 2)
	type result struct {
		values []float64
		err    error
	}
	done := make(chan result, 1)
	go func() {
		_, values, err := c.start(ctx, p, 1, nil)
		done <- result{values, err}
	}()

	var s *Stepper
	for s == nil || s.Scheduled() < 2 {
		if ctx.Err() != nil {
			t.Fatal("stepper did not schedule step 2")
		}
		time.Sleep(time.Millisecond)
		if s == nil {
			s = c.stepper(locality.Name("test", 0))
		}
	}
	// With no step complete, step 3 is more than nd=2 steps past the
	// floor and may not be scheduled.
	time.Sleep(50 * time.Millisecond)
	expect.EQ(t, s.Scheduled(), 2)

	close(release)
	res := <-done
	assert.NoError(t, res.err)
	expect.EQ(t, res.values, serial(heat, 2, 10))
	expect.EQ(t, s.Scheduled(), 9)
}

func TestMigrateDuringRun(t *testing.T) {
	ctx := context.Background()
	c := newTestCluster(2, nil)
	p := params(3, 6, 2)
	addrs, got := c.run(ctx, t, p, 3, &locality.Migration{Step: 2, Partition: 1, Node: 1})
	expect.EQ(t, got, serial(p.Stencil(), 18, 6))
	expect.EQ(t, addrs[0][0].Node, 0)
	expect.EQ(t, addrs[0][1].Node, 1)
	expect.EQ(t, addrs[0][2].Node, 0)
	expect.EQ(t, c.locals[0].Len(), 2)
	expect.EQ(t, c.locals[1].Len(), 4)
}

func TestMigrateFailure(t *testing.T) {
	c := newTestCluster(1, nil)
	p := params(3, 4, 2)
	// Migrating to a node outside the cluster fails; the run continues
	// with the original partition.
	addrs, got := c.run(context.Background(), t, p, 2, &locality.Migration{Step: 1, Partition: 0, Node: 7})
	expect.EQ(t, got, serial(p.Stencil(), 6, 4))
	expect.EQ(t, addrs[0][0].Node, 0)
}

func TestReleaseDependencies(t *testing.T) {
	c := newTestCluster(1, nil)
	s, err := New(c.locals[0], "test-0", 0, 1)
	assert.NoError(t, err)
	s.ReleaseDependencies()
	s.ReleaseDependencies()
	_, err = s.Work(context.Background(), locality.Work{Params: params(2, 1, 1), LocalNP: 1})
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("expected Invalid, got %v", err)
	}
	_, err = s.Work(context.Background(), locality.Work{Params: params(2, 1, 1), LocalNP: 1})
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("expected Invalid, got %v", err)
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(locality.NewLocal(0, nil, nil, nil, nil), "test-0", 0, 1); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected Invalid, got %v", err)
	}
	c := newTestCluster(1, nil)
	if _, err := New(c.locals[0], "test-0", 1, 1); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected Invalid, got %v", err)
	}
	if _, err := New(c.locals[0], "noindex", 0, 1); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected Invalid, got %v", err)
	}
}

// unreachable is a locality whose deliveries fail from step on, as
// if the node had become unreachable.
type unreachable struct {
	locality.Locality
	step int
}

func (u unreachable) Deliver(ctx context.Context, name string, dir locality.Direction, step int, data *partition.Data) error {
	if step < u.step {
		return u.Locality.Deliver(ctx, name, dir, step, data)
	}
	data.Release()
	return errors.E("deliver", name, errors.Net, errors.New("connection refused"))
}

func TestTransportFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		c := newTestCluster(2, nil)
		localities := append([]locality.Locality(nil), c.cluster.Localities()...)
		localities[1] = unreachable{localities[1], 3}
		c.cluster.SetLocalities(localities)

		errc := make(chan error, 1)
		go func() {
			_, _, err := c.start(ctx, params(3, 8, 2), 2, nil)
			errc <- err
		}()
		var err error
		select {
		case err = <-errc:
		case <-ctx.Done():
			t.Fatal("run did not fail")
		}
		if !errors.Is(errors.Net, err) {
			t.Errorf("expected Net, got %v", err)
		}
		for j := range c.locals {
			s := c.stepper(locality.Name("test", j))
			expect.EQ(t, s.fromLeft.Len(), 0)
			expect.EQ(t, s.fromRight.Len(), 0)
			assert.NoError(t, c.locals[j].Release(ctx, locality.Name("test", j)))
			expect.EQ(t, c.locals[j].Len(), 0)
		}
	}
}
