// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package locality

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/grailbio/stencil/errors"
	"github.com/grailbio/stencil/partition"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func values(t *testing.T, c *Cluster, addr partition.Addr) []float64 {
	t.Helper()
	d, err := c.Fetch(context.Background(), addr, partition.Full)
	assert.NoError(t, err)
	defer d.Release()
	return append([]float64(nil), d.Values()...)
}

func TestCreateFetch(t *testing.T) {
	ctx := context.Background()
	c, locals := NewLocalCluster(1, nil, nil, nil)
	addr, err := c.Create(ctx, 0, 4, 2)
	assert.NoError(t, err)
	expect.EQ(t, addr.Node, 0)
	expect.EQ(t, values(t, c, addr), []float64{8, 9, 10, 11})

	left, err := c.Fetch(ctx, addr, partition.LeftBoundary)
	assert.NoError(t, err)
	expect.EQ(t, left.At(0), 8.)
	left.Release()
	right, err := c.Fetch(ctx, addr, partition.RightBoundary)
	assert.NoError(t, err)
	expect.EQ(t, right.At(3), 11.)
	expect.EQ(t, right.Len(), 1)
	right.Release()

	assert.NoError(t, c.Free(ctx, addr))
	expect.EQ(t, locals[0].Len(), 0)
	if _, err := c.Fetch(ctx, addr, partition.Full); !errors.Is(errors.NotExist, err) {
		t.Errorf("expected NotExist, got %v", err)
	}
	if _, err := c.Create(ctx, 0, 0, 0); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected Invalid, got %v", err)
	}
	if _, err := c.Create(ctx, 3, 1, 0); !errors.Is(errors.NotExist, err) {
		t.Errorf("expected NotExist, got %v", err)
	}
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	c, locals := NewLocalCluster(2, partition.NewAllocator(4), nil, nil)
	addr, err := c.Create(ctx, 0, 3, 1)
	assert.NoError(t, err)

	same, err := c.Migrate(ctx, addr, 0)
	assert.NoError(t, err)
	expect.EQ(t, same, addr)

	naddr, err := c.Migrate(ctx, addr, 1)
	assert.NoError(t, err)
	expect.EQ(t, naddr.Node, 1)
	expect.EQ(t, values(t, c, naddr), []float64{3, 4, 5})
	expect.EQ(t, locals[0].Len(), 0)
	expect.EQ(t, locals[1].Len(), 1)

	// The old address forwards to the new location.
	expect.EQ(t, values(t, c, addr), []float64{3, 4, 5})
	assert.NoError(t, c.Free(ctx, addr))
	expect.EQ(t, locals[1].Len(), 0)

	if _, err := c.Migrate(ctx, naddr, 5); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected Invalid, got %v", err)
	}
}

func TestMigratePinned(t *testing.T) {
	ctx := context.Background()
	c, locals := NewLocalCluster(2, nil, nil, nil)
	addr, err := c.Create(ctx, 0, 2, 0)
	assert.NoError(t, err)
	unpin, err := locals[0].Pin(ctx, addr.ID)
	assert.NoError(t, err)
	_, err = c.Migrate(ctx, addr, 1)
	if !errors.Is(errors.Migration, err) {
		t.Fatalf("expected migration error, got %v", err)
	}
	// The object remains valid at its original address.
	expect.EQ(t, values(t, c, addr), []float64{0, 1})
	unpin()
	unpin()
	naddr, err := c.Migrate(ctx, addr, 1)
	assert.NoError(t, err)
	expect.EQ(t, naddr.Node, 1)
}

// blockingLocality blocks migrations into it until it is unblocked.
type blockingLocality struct {
	*Local
	entered, unblock chan struct{}
}

func (b *blockingLocality) Adopt(ctx context.Context, data *partition.Data, origin partition.Addr) (partition.Addr, error) {
	close(b.entered)
	<-b.unblock
	return b.Local.Adopt(ctx, data, origin)
}

func TestMigrateInProgress(t *testing.T) {
	ctx := context.Background()
	c := new(Cluster)
	l0 := NewLocal(0, c, nil, nil, nil)
	target := &blockingLocality{
		Local:   NewLocal(1, c, nil, nil, nil),
		entered: make(chan struct{}),
		unblock: make(chan struct{}),
	}
	c.SetLocalities([]Locality{l0, target})
	addr, err := c.Create(ctx, 0, 2, 1)
	assert.NoError(t, err)

	type result struct {
		addr partition.Addr
		err  error
	}
	resc := make(chan result, 1)
	go func() {
		naddr, err := c.Migrate(ctx, addr, 1)
		resc <- result{naddr, err}
	}()
	<-target.entered

	if _, err := c.Migrate(ctx, addr, 1); !errors.Is(errors.Migration, err) {
		t.Errorf("expected migration error, got %v", err)
	}
	if err := c.Free(ctx, addr); !errors.Is(errors.Unavailable, err) {
		t.Errorf("expected unavailable error, got %v", err)
	}
	expect.EQ(t, values(t, c, addr), []float64{2, 3})

	close(target.unblock)
	res := <-resc
	assert.NoError(t, res.err)
	expect.EQ(t, res.addr.Node, 1)
	expect.EQ(t, values(t, c, res.addr), []float64{2, 3})
}

type delivery struct {
	dir  Direction
	step int
	addr partition.Addr
}

type recorder struct {
	mu         sync.Mutex
	deliveries []delivery
	released   int
}

func (r *recorder) Receive(dir Direction, step int, addr partition.Addr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, delivery{dir, step, addr})
	return nil
}

func (r *recorder) Work(ctx context.Context, work Work) ([]partition.Addr, error) {
	return nil, nil
}

func (r *recorder) ReleaseDependencies() {
	r.mu.Lock()
	r.released++
	r.mu.Unlock()
}

func TestDeliverBeforeRegistration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rec := new(recorder)
	c, locals := NewLocalCluster(1, nil, nil, func(l *Local, name string, i, nodes int) (Component, error) {
		return rec, nil
	})
	errc := make(chan error, 1)
	go func() {
		errc <- c.Peer(0, Name("run", 0)).Deliver(ctx, Left, 3, partition.DefaultAllocator().Copy([]float64{7}))
	}()
	assert.NoError(t, locals[0].Spawn(ctx, "run", 0, 1))
	assert.NoError(t, <-errc)
	assert.EQ(t, len(rec.deliveries), 1)
	d := rec.deliveries[0]
	expect.EQ(t, d.dir, Left)
	expect.EQ(t, d.step, 3)
	expect.EQ(t, values(t, c, d.addr), []float64{7})

	if err := locals[0].Spawn(ctx, "run", 0, 1); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected Invalid, got %v", err)
	}
	expect.EQ(t, rec.released, 1)
	assert.NoError(t, locals[0].Release(ctx, Name("run", 0)))
	assert.NoError(t, locals[0].Release(ctx, Name("run", 0)))
	expect.EQ(t, rec.released, 2)
}

func TestLookupCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := NewLocal(0, nil, nil, nil, nil)
	cancel()
	if err := l.Lookup(ctx, "nothere-0"); !errors.Is(errors.Canceled, err) {
		t.Errorf("expected Canceled, got %v", err)
	}
	if err := (Peer{}).Lookup(context.Background()); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected Invalid, got %v", err)
	}
}

func TestPing(t *testing.T) {
	c, _ := NewLocalCluster(3, nil, nil, nil)
	assert.NoError(t, c.Ping(context.Background()))
	if err := new(Cluster).Ping(context.Background()); !errors.Is(errors.Unavailable, err) {
		t.Errorf("expected Unavailable, got %v", err)
	}
}

func TestUnregister(t *testing.T) {
	l := NewLocal(0, nil, nil, nil, nil)
	rec := new(recorder)
	assert.NoError(t, l.Register("run-0", rec))
	if got := l.Unregister("run-0"); got != Component(rec) {
		t.Errorf("got %v, want %v", got, rec)
	}
	if got := l.Unregister("run-0"); got != nil {
		t.Errorf("got %v, want nil", got)
	}
	// Unregistering does not release dependencies.
	expect.EQ(t, rec.released, 0)
	assert.NoError(t, l.Register("run-0", rec))
}

func TestFreeDropsForwarding(t *testing.T) {
	ctx := context.Background()
	for _, viaOrigin := range []bool{false, true} {
		c, locals := NewLocalCluster(3, nil, nil, nil)
		addr, err := c.Create(ctx, 0, 2, 0)
		assert.NoError(t, err)
		mid, err := c.Migrate(ctx, addr, 1)
		assert.NoError(t, err)
		last, err := c.Migrate(ctx, mid, 2)
		assert.NoError(t, err)
		expect.EQ(t, locals[0].Forwarding(), 1)
		expect.EQ(t, locals[1].Forwarding(), 1)
		expect.EQ(t, values(t, c, addr), []float64{0, 1})

		if viaOrigin {
			assert.NoError(t, c.Free(ctx, addr))
		} else {
			assert.NoError(t, c.Free(ctx, last))
		}
		for i, l := range locals {
			expect.EQ(t, l.Len(), 0, i)
			expect.EQ(t, l.Forwarding(), 0, i)
		}
		if err := c.Free(ctx, addr); !errors.Is(errors.NotExist, err) {
			t.Errorf("expected NotExist, got %v", err)
		}
	}
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	c, locals := NewLocalCluster(2, nil, nil, nil)
	assert.NoError(t, locals[0].Forget(ctx, "unknown"))
	addr, err := c.Create(ctx, 0, 1, 0)
	assert.NoError(t, err)
	naddr, err := c.Migrate(ctx, addr, 1)
	assert.NoError(t, err)
	assert.NoError(t, c.Forget(ctx, addr))
	expect.EQ(t, locals[0].Forwarding(), 0)
	expect.EQ(t, locals[1].Len(), 1)
	assert.NoError(t, c.Free(ctx, naddr))
	expect.EQ(t, locals[1].Len(), 0)
}
