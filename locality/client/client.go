// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package client implements a remoting client for stencil localities.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/grailbio/stencil"
	"github.com/grailbio/stencil/errors"
	"github.com/grailbio/stencil/locality"
	"github.com/grailbio/stencil/locality/server"
	"github.com/grailbio/stencil/log"
	"github.com/grailbio/stencil/partition"
	"github.com/grailbio/stencil/rest"
	"github.com/grailbio/stencil/trace"
	"golang.org/x/sync/singleflight"
)

// Client implements locality.Locality by dispatching calls to a
// remote locality.
type Client struct {
	*rest.Client
	node  int
	alloc *partition.Allocator
	group singleflight.Group

	mu sync.Mutex
	// known records the component names that are known to be
	// registered on the remote node.
	known map[string]bool
}

// New creates a new Client for the locality with index node, served
// at baseurl. If client is nil, http.DefaultClient is used. Partitions
// received from the remote node are allocated from alloc. If log is
// not nil, Client logs detailed request/response information to it.
func New(node int, baseurl string, client *http.Client, alloc *partition.Allocator, log *log.Logger) (*Client, error) {
	u, err := url.Parse(baseurl)
	if err != nil {
		return nil, errors.E("client", baseurl, errors.Invalid, err)
	}
	if u.Path == "" || u.Path[len(u.Path)-1] != '/' {
		u.Path += "/"
	}
	return &Client{
		Client: rest.NewClient(client, u, log),
		node:   node,
		alloc:  alloc,
		known:  make(map[string]bool),
	}, nil
}

// ID implements locality.Locality.
func (c *Client) ID() int { return c.node }

func (c *Client) String() string {
	return fmt.Sprintf("node %d (%s)", c.node, c.URL())
}

func (c *Client) invoke(ctx context.Context, op, method, path string, req, reply interface{}) error {
	ctx, done := trace.Start(ctx, trace.Transport, path, op+" "+c.URL().Host)
	defer done()
	err := c.Invoke(ctx, op, http.StatusOK, method, path, req, reply)
	trace.Error(ctx, err)
	return err
}

func escape(s string) string { return url.PathEscape(s) }

// Ping implements locality.Locality. It also verifies that the remote
// node serves the expected index and speaks a compatible protocol
// version.
func (c *Client) Ping(ctx context.Context) error {
	var reply server.PingReply
	if err := c.invoke(ctx, "ping", "GET", "v1/ping", nil, &reply); err != nil {
		return err
	}
	if reply.Node != c.node {
		return errors.E("ping", c.URL().String(), errors.Invalid, fmt.Errorf("remote serves node %d, want %d", reply.Node, c.node))
	}
	if !stencil.CompatibleVersions(reply.Version, stencil.Version) {
		return errors.E("ping", c.URL().String(), errors.Invalid, fmt.Errorf("remote speaks version %s, want %s", reply.Version, stencil.Version))
	}
	return nil
}

// Create implements locality.Locality.
func (c *Client) Create(ctx context.Context, size int, init float64) (partition.Addr, error) {
	var addr partition.Addr
	err := c.invoke(ctx, "create", "POST", "v1/partitions", server.PartitionRequest{Size: size, Init: init}, &addr)
	return addr, err
}

// Put implements locality.Locality.
func (c *Client) Put(ctx context.Context, data *partition.Data) (partition.Addr, error) {
	w := data.Wire()
	data.Release()
	var addr partition.Addr
	err := c.invoke(ctx, "put", "POST", "v1/partitions", server.PartitionRequest{Data: &w}, &addr)
	return addr, err
}

// Adopt implements locality.Locality.
func (c *Client) Adopt(ctx context.Context, data *partition.Data, origin partition.Addr) (partition.Addr, error) {
	w := data.Wire()
	data.Release()
	var addr partition.Addr
	err := c.invoke(ctx, "adopt", "POST", "v1/partitions", server.PartitionRequest{Data: &w, Origin: &origin}, &addr)
	return addr, err
}

// Forget implements locality.Locality.
func (c *Client) Forget(ctx context.Context, id string) error {
	return c.invoke(ctx, "forget", "POST", "v1/partitions/"+escape(id)+"/forget", nil, nil)
}

// Fetch implements locality.Locality.
func (c *Client) Fetch(ctx context.Context, id string, kind partition.Kind) (*partition.Data, error) {
	var w partition.Wire
	if err := c.invoke(ctx, "fetch", "GET", "v1/partitions/"+escape(id)+"/"+kind.String(), nil, &w); err != nil {
		return nil, err
	}
	return c.alloc.FromWire(w)
}

// Migrate implements locality.Locality.
func (c *Client) Migrate(ctx context.Context, id string, node int) (partition.Addr, error) {
	addr := partition.Addr{Node: c.node, ID: id}
	err := c.invoke(ctx, "migrate", "POST", "v1/partitions/"+escape(id)+"/migrate", server.MigrateRequest{Node: node}, &addr)
	return addr, err
}

// Free implements locality.Locality.
func (c *Client) Free(ctx context.Context, id string) error {
	return c.invoke(ctx, "free", "DELETE", "v1/partitions/"+escape(id), nil, nil)
}

// Spawn implements locality.Locality.
func (c *Client) Spawn(ctx context.Context, basename string, i, nodes int) error {
	return c.invoke(ctx, "spawn", "POST", "v1/spawn", server.SpawnRequest{Basename: basename, Index: i, Nodes: nodes}, nil)
}

// Lookup implements locality.Locality. Concurrent lookups of the same
// name share a single call, and names found are remembered until they
// are released.
func (c *Client) Lookup(ctx context.Context, name string) error {
	c.mu.Lock()
	ok := c.known[name]
	c.mu.Unlock()
	if ok {
		return nil
	}
	_, err, _ := c.group.Do(name, func() (interface{}, error) {
		var reply string
		if err := c.invoke(ctx, "lookup", "GET", "v1/components/"+escape(name), nil, &reply); err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.known[name] = true
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

// Deliver implements locality.Locality.
func (c *Client) Deliver(ctx context.Context, name string, dir locality.Direction, step int, data *partition.Data) error {
	req := server.DeliverRequest{Direction: dir.String(), Step: step, Data: data.Wire()}
	data.Release()
	return c.invoke(ctx, "deliver", "POST", "v1/components/"+escape(name)+"/deliver", req, nil)
}

// Work implements locality.Locality.
func (c *Client) Work(ctx context.Context, name string, work locality.Work) ([]partition.Addr, error) {
	var addrs []partition.Addr
	err := c.invoke(ctx, "work", "POST", "v1/components/"+escape(name)+"/work", work, &addrs)
	return addrs, err
}

// Release implements locality.Locality.
func (c *Client) Release(ctx context.Context, name string) error {
	c.mu.Lock()
	delete(c.known, name)
	c.mu.Unlock()
	return c.invoke(ctx, "release", "POST", "v1/components/"+escape(name)+"/release", nil, nil)
}
