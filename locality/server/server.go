// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package server exposes a locality.Locality through a REST API.
// Package locality/client implements the corresponding client.
package server

import (
	"context"
	"net/http"

	"github.com/grailbio/stencil"
	"github.com/grailbio/stencil/errors"
	"github.com/grailbio/stencil/locality"
	"github.com/grailbio/stencil/partition"
	"github.com/grailbio/stencil/rest"
)

// PartitionRequest is the body of a request to store a partition.
// If Data is set, it is stored, as an object migrating from Origin if
// that is set too; otherwise a partition of the given size is created.
type PartitionRequest struct {
	Size   int             `json:"size,omitempty"`
	Init   float64         `json:"init,omitempty"`
	Data   *partition.Wire `json:"data,omitempty"`
	Origin *partition.Addr `json:"origin,omitempty"`
}

// MigrateRequest is the body of a migration request.
type MigrateRequest struct {
	Node int `json:"node"`
}

// DeliverRequest is the body of a boundary delivery.
type DeliverRequest struct {
	Direction string         `json:"direction"`
	Step      int            `json:"step"`
	Data      partition.Wire `json:"data"`
}

// SpawnRequest is the body of a spawn request.
type SpawnRequest struct {
	Basename string `json:"basename"`
	Index    int    `json:"index"`
	Nodes    int    `json:"nodes"`
}

// PingReply identifies the node serving a locality.
type PingReply struct {
	Node    int    `json:"node"`
	Version string `json:"version"`
}

// NewNode returns a rest.Node that serves locality l. Partitions
// received over the wire are allocated from alloc.
func NewNode(l locality.Locality, alloc *partition.Allocator) rest.Node {
	v1 := rest.Mux{
		"ping": rest.DoFunc(func(ctx context.Context, call *rest.Call) {
			if !call.Allow("GET") {
				return
			}
			if err := l.Ping(ctx); err != nil {
				call.Error(err)
				return
			}
			call.Reply(http.StatusOK, PingReply{Node: l.ID(), Version: stencil.Version})
		}),
		"partitions": &partitionsNode{l, alloc},
		"components": rest.WalkFunc(func(name string) rest.Node {
			return &componentNode{l, alloc, name}
		}),
		"spawn": rest.DoFunc(func(ctx context.Context, call *rest.Call) {
			if !call.Allow("POST") {
				return
			}
			var arg SpawnRequest
			if call.Unmarshal(&arg) != nil {
				return
			}
			if err := l.Spawn(ctx, arg.Basename, arg.Index, arg.Nodes); err != nil {
				call.Error(err)
				return
			}
			call.Reply(http.StatusOK, nil)
		}),
	}
	return rest.Mux{"v1": v1}
}

type partitionsNode struct {
	l     locality.Locality
	alloc *partition.Allocator
}

func (n *partitionsNode) Walk(ctx context.Context, call *rest.Call, id string) rest.Node {
	return &objectNode{n.l, id}
}

func (n *partitionsNode) Do(ctx context.Context, call *rest.Call) {
	if !call.Allow("POST") {
		return
	}
	var arg PartitionRequest
	if call.Unmarshal(&arg) != nil {
		return
	}
	var (
		addr partition.Addr
		err  error
	)
	if arg.Data != nil {
		var data *partition.Data
		data, err = n.alloc.FromWire(*arg.Data)
		switch {
		case err != nil:
		case arg.Origin != nil:
			addr, err = n.l.Adopt(ctx, data, *arg.Origin)
		default:
			addr, err = n.l.Put(ctx, data)
		}
	} else {
		addr, err = n.l.Create(ctx, arg.Size, arg.Init)
	}
	if err != nil {
		call.Error(err)
		return
	}
	call.Reply(http.StatusOK, addr)
}

// A pinner can hold an object in place while it is being served.
// Pinned objects cannot migrate.
type pinner interface {
	Pin(ctx context.Context, id string) (unpin func(), err error)
}

type objectNode struct {
	l  locality.Locality
	id string
}

func (n *objectNode) Walk(ctx context.Context, call *rest.Call, path string) rest.Node {
	switch path {
	case "migrate":
		return rest.DoFunc(n.migrate)
	case "forget":
		return rest.DoFunc(func(ctx context.Context, call *rest.Call) {
			if !call.Allow("POST") {
				return
			}
			if err := n.l.Forget(ctx, n.id); err != nil {
				call.Error(err)
				return
			}
			call.Reply(http.StatusOK, nil)
		})
	}
	kind, err := partition.ParseKind(path)
	if err != nil {
		return nil
	}
	return rest.DoFunc(func(ctx context.Context, call *rest.Call) {
		if !call.Allow("GET") {
			return
		}
		if p, ok := n.l.(pinner); ok {
			// Objects forwarded elsewhere are not pinned here.
			if unpin, err := p.Pin(ctx, n.id); err == nil {
				defer unpin()
			}
		}
		data, err := n.l.Fetch(ctx, n.id, kind)
		if err != nil {
			call.Error(err)
			return
		}
		defer data.Release()
		call.Reply(http.StatusOK, data.Wire())
	})
}

func (n *objectNode) Do(ctx context.Context, call *rest.Call) {
	if !call.Allow("DELETE") {
		return
	}
	if err := n.l.Free(ctx, n.id); err != nil {
		call.Error(err)
		return
	}
	call.Reply(http.StatusOK, nil)
}

func (n *objectNode) migrate(ctx context.Context, call *rest.Call) {
	if !call.Allow("POST") {
		return
	}
	var arg MigrateRequest
	if call.Unmarshal(&arg) != nil {
		return
	}
	addr, err := n.l.Migrate(ctx, n.id, arg.Node)
	if err != nil {
		call.Error(err)
		return
	}
	call.Reply(http.StatusOK, addr)
}

type componentNode struct {
	l     locality.Locality
	alloc *partition.Allocator
	name  string
}

func (n *componentNode) Walk(ctx context.Context, call *rest.Call, path string) rest.Node {
	switch path {
	case "deliver":
		return rest.DoFunc(n.deliver)
	case "work":
		return rest.DoFunc(n.work)
	case "release":
		return rest.DoFunc(n.release)
	}
	return nil
}

func (n *componentNode) Do(ctx context.Context, call *rest.Call) {
	if !call.Allow("GET") {
		return
	}
	if err := n.l.Lookup(ctx, n.name); err != nil {
		call.Error(err)
		return
	}
	call.Reply(http.StatusOK, n.name)
}

func (n *componentNode) deliver(ctx context.Context, call *rest.Call) {
	if !call.Allow("POST") {
		return
	}
	var arg DeliverRequest
	if call.Unmarshal(&arg) != nil {
		return
	}
	dir, err := locality.ParseDirection(arg.Direction)
	if err != nil {
		call.Error(err)
		return
	}
	data, err := n.alloc.FromWire(arg.Data)
	if err != nil {
		call.Error(errors.E("deliver", n.name, err))
		return
	}
	if err := n.l.Deliver(ctx, n.name, dir, arg.Step, data); err != nil {
		call.Error(err)
		return
	}
	call.Reply(http.StatusOK, nil)
}

func (n *componentNode) work(ctx context.Context, call *rest.Call) {
	if !call.Allow("POST") {
		return
	}
	var arg locality.Work
	if call.Unmarshal(&arg) != nil {
		return
	}
	addrs, err := n.l.Work(ctx, n.name, arg)
	if err != nil {
		call.Error(err)
		return
	}
	call.Reply(http.StatusOK, addrs)
}

func (n *componentNode) release(ctx context.Context, call *rest.Call) {
	if !call.Allow("POST") {
		return
	}
	if err := n.l.Release(ctx, n.name); err != nil {
		call.Error(err)
		return
	}
	call.Reply(http.StatusOK, nil)
}
