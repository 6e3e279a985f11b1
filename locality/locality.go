// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package locality implements the nodes ("localities") of a stencil
// cluster. A locality holds partition objects in an object table,
// hosts components (steppers) registered under well-known names, and
// relays boundary deliveries to them. Localities are addressed by
// index within a Cluster, which arranges them in a ring and routes
// partition operations to the node that owns each object.
//
// Local is the in-process implementation; package locality/client
// accesses a Local served over REST by package locality/server.
package locality

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/stencil"
	"github.com/grailbio/stencil/errors"
	"github.com/grailbio/stencil/partition"
)

// Locality is a node in a stencil cluster.
type Locality interface {
	// ID returns the node's index in its cluster.
	ID() int
	// Ping checks that the node is reachable.
	Ping(ctx context.Context) error

	// Create allocates a partition of the given size on this node,
	// with element i initialized to init*size + i.
	Create(ctx context.Context, size int, init float64) (partition.Addr, error)
	// Put stores data as a new object on this node. Put takes
	// ownership of the caller's reference to data.
	Put(ctx context.Context, data *partition.Data) (partition.Addr, error)
	// Fetch returns the subset of object id's data selected by kind.
	// The caller must release the returned data.
	Fetch(ctx context.Context, id string, kind partition.Kind) (*partition.Data, error)
	// Migrate moves object id to node, returning its new address.
	// Migrate fails with errors.Migration if the object is pinned by
	// an active operation, is already migrating, or cannot be stored
	// on the target; the object then remains valid at its address.
	Migrate(ctx context.Context, id string, node int) (partition.Addr, error)
	// Free drops object id.
	Free(ctx context.Context, id string) error
	// Adopt stores data, an object migrating from origin, as a new
	// object on this node. When the new object is freed, the
	// forwarding entry at origin is dropped. Adopt takes ownership of
	// the caller's reference to data.
	Adopt(ctx context.Context, data *partition.Data, origin partition.Addr) (partition.Addr, error)
	// Forget drops the forwarding entry left by object id's migration
	// away from this node. Forgetting an unknown id is not an error.
	Forget(ctx context.Context, id string) error

	// Spawn creates the component with index i of a run with the given
	// basename over nodes localities, and registers it under
	// Name(basename, i).
	Spawn(ctx context.Context, basename string, i, nodes int) error
	// Lookup waits until a component named name is registered.
	Lookup(ctx context.Context, name string) error
	// Deliver stores data, a boundary partition for the given step
	// that was sent from the neighbor in direction dir, and hands it
	// to the named component. Deliveries to names not yet registered
	// wait for registration. Deliver takes ownership of data.
	Deliver(ctx context.Context, name string, dir Direction, step int, data *partition.Data) error
	// Work runs the named component's time loop and returns the
	// addresses of its final partitions, in partition order.
	Work(ctx context.Context, name string, work Work) ([]partition.Addr, error)
	// Release tears down the named component's neighbor references
	// and unregisters it. Releasing an unknown name is not an error.
	Release(ctx context.Context, name string) error
}

// Component is a named object hosted by a locality.
type Component interface {
	// Receive accepts the boundary partition at addr for the given
	// step, sent by the neighbor in direction dir.
	Receive(dir Direction, step int, addr partition.Addr) error
	// Work runs the component's time loop.
	Work(ctx context.Context, work Work) ([]partition.Addr, error)
	// ReleaseDependencies drops the component's references to its
	// neighbors. It may be called more than once.
	ReleaseDependencies()
}

// SpawnFunc constructs the component with index i of a run over
// nodes localities, hosted by l and named name.
type SpawnFunc func(l *Local, name string, i, nodes int) (Component, error)

// Migration describes a partition relocation performed during a run.
type Migration struct {
	// Step is the time step before which the partition is migrated.
	Step int `json:"step"`
	// Partition is the local index of the migrated partition.
	Partition int `json:"partition"`
	// Node is the index of the target node.
	Node int `json:"node"`
}

// Work is a request to run a component's time loop.
type Work struct {
	stencil.Params
	// LocalNP is the number of partitions on this node.
	LocalNP int `json:"local_np"`
	// Offset is the global index of this node's first partition.
	Offset int `json:"offset"`
	// Migrate, if non-nil, relocates a partition during the run.
	Migrate *Migration `json:"migrate,omitempty"`
}

// Direction denotes a neighbor in the ring.
type Direction int

const (
	// Left is the neighbor with the next lower index.
	Left Direction = -1
	// Right is the neighbor with the next higher index.
	Right Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "direction(" + strconv.Itoa(int(d)) + ")"
	}
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	return -d
}

// ParseDirection parses a direction as rendered by Direction.String.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	default:
		return 0, errors.E("parsedirection", s, errors.Invalid, errors.New("unknown direction"))
	}
}

// Neighbor returns the index of node i's neighbor in direction dir
// in a ring of n nodes.
func Neighbor(i int, dir Direction, n int) int {
	return ((i+int(dir))%n + n) % n
}

// Name returns the name under which the component with index i of
// the run with the given basename is registered.
func Name(basename string, i int) string {
	return fmt.Sprintf("%s-%d", basename, i)
}

// ParseName splits a component name into its basename and index.
func ParseName(name string) (basename string, i int, err error) {
	j := strings.LastIndexByte(name, '-')
	if j < 0 {
		return "", 0, errors.E("parsename", name, errors.Invalid)
	}
	i, err = strconv.Atoi(name[j+1:])
	if err != nil {
		return "", 0, errors.E("parsename", name, errors.Invalid, err)
	}
	return name[:j], i, nil
}
