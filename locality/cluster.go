// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package locality

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/grailbio/base/traverse"
	"github.com/grailbio/stencil/errors"
	"github.com/grailbio/stencil/log"
	"github.com/grailbio/stencil/partition"
)

// Cluster is an ordered set of localities forming a ring. Cluster
// implements partition.Space: operations on an address are routed to
// the locality that owns it.
type Cluster struct {
	localities atomic.Value
}

// SetLocalities sets the cluster's localities. The locality at index
// i must have ID i.
func (c *Cluster) SetLocalities(localities []Locality) {
	c.localities.Store(localities)
}

// Localities returns the cluster's localities.
func (c *Cluster) Localities() []Locality {
	l := c.localities.Load()
	if l == nil {
		return nil
	}
	return l.([]Locality)
}

// Size tells how many localities the cluster comprises.
func (c *Cluster) Size() int {
	return len(c.Localities())
}

// Node returns the locality with index i.
func (c *Cluster) Node(i int) (Locality, error) {
	localities := c.Localities()
	if i < 0 || i >= len(localities) {
		return nil, errors.E("node", fmt.Sprint(i), errors.NotExist)
	}
	return localities[i], nil
}

// Create implements partition.Space.
func (c *Cluster) Create(ctx context.Context, node, size int, init float64) (partition.Addr, error) {
	l, err := c.Node(node)
	if err != nil {
		return partition.Addr{}, err
	}
	return l.Create(ctx, size, init)
}

// Put implements partition.Space.
func (c *Cluster) Put(ctx context.Context, node int, data *partition.Data) (partition.Addr, error) {
	l, err := c.Node(node)
	if err != nil {
		data.Release()
		return partition.Addr{}, err
	}
	return l.Put(ctx, data)
}

// Adopt stores data, migrating from origin, on the given node.
func (c *Cluster) Adopt(ctx context.Context, node int, data *partition.Data, origin partition.Addr) (partition.Addr, error) {
	l, err := c.Node(node)
	if err != nil {
		data.Release()
		return partition.Addr{}, err
	}
	return l.Adopt(ctx, data, origin)
}

// Forget drops the forwarding entry at addr.
func (c *Cluster) Forget(ctx context.Context, addr partition.Addr) error {
	l, err := c.Node(addr.Node)
	if err != nil {
		return err
	}
	return l.Forget(ctx, addr.ID)
}

// Fetch implements partition.Space.
func (c *Cluster) Fetch(ctx context.Context, addr partition.Addr, kind partition.Kind) (*partition.Data, error) {
	l, err := c.Node(addr.Node)
	if err != nil {
		return nil, err
	}
	return l.Fetch(ctx, addr.ID, kind)
}

// Migrate implements partition.Space.
func (c *Cluster) Migrate(ctx context.Context, addr partition.Addr, node int) (partition.Addr, error) {
	l, err := c.Node(addr.Node)
	if err != nil {
		return addr, err
	}
	return l.Migrate(ctx, addr.ID, node)
}

// Free implements partition.Space.
func (c *Cluster) Free(ctx context.Context, addr partition.Addr) error {
	l, err := c.Node(addr.Node)
	if err != nil {
		return err
	}
	return l.Free(ctx, addr.ID)
}

// Ping pings every locality in the cluster, returning the first
// error encountered.
func (c *Cluster) Ping(ctx context.Context) error {
	localities := c.Localities()
	if len(localities) == 0 {
		return errors.E("ping", errors.Unavailable, errors.New("cluster has no localities"))
	}
	return traverse.Each(len(localities), func(i int) error {
		if err := localities[i].Ping(ctx); err != nil {
			return errors.E("ping", fmt.Sprint(i), err)
		}
		return nil
	})
}

// Peer returns a reference to the component registered under name on
// node.
func (c *Cluster) Peer(node int, name string) Peer {
	return Peer{cluster: c, node: node, name: name}
}

// Peer is a weak reference to a component hosted by a locality in a
// cluster: holding a Peer keeps neither the component nor its
// locality alive. The zero Peer refers to nothing; operations on it
// fail.
type Peer struct {
	cluster *Cluster
	node    int
	name    string
}

// Valid tells whether p refers to a component.
func (p Peer) Valid() bool { return p.cluster != nil }

// Node returns the index of the locality hosting p.
func (p Peer) Node() int { return p.node }

// Name returns the name under which p is registered.
func (p Peer) Name() string { return p.name }

func (p Peer) String() string {
	if !p.Valid() {
		return "peer(none)"
	}
	return fmt.Sprintf("%s@%d", p.name, p.node)
}

func (p Peer) locality(op string) (Locality, error) {
	if !p.Valid() {
		return nil, errors.E(op, errors.Invalid, errors.New("invalid peer"))
	}
	l, err := p.cluster.Node(p.node)
	if err != nil {
		return nil, errors.E(op, p.name, err)
	}
	return l, nil
}

// Lookup waits until the component is registered.
func (p Peer) Lookup(ctx context.Context) error {
	l, err := p.locality("lookup")
	if err != nil {
		return err
	}
	return l.Lookup(ctx, p.name)
}

// Deliver sends data, the boundary partition for step, to the
// component. Dir is the direction of the sender as seen from the
// component. Deliver takes ownership of data.
func (p Peer) Deliver(ctx context.Context, dir Direction, step int, data *partition.Data) error {
	l, err := p.locality("deliver")
	if err != nil {
		data.Release()
		return err
	}
	return l.Deliver(ctx, p.name, dir, step, data)
}

// NewLocalCluster returns a cluster of n in-process localities that
// share the allocator alloc and spawn components with spawn. Each
// locality logs to log with a prefix naming its node.
func NewLocalCluster(n int, alloc *partition.Allocator, log *log.Logger, spawn SpawnFunc) (*Cluster, []*Local) {
	c := new(Cluster)
	var (
		locals     = make([]*Local, n)
		localities = make([]Locality, n)
	)
	for i := range locals {
		locals[i] = NewLocal(i, c, alloc, log.Tee(nil, fmt.Sprintf("node %d: ", i)), spawn)
		localities[i] = locals[i]
	}
	c.SetLocalities(localities)
	return c, locals
}
