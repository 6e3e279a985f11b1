// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package partition

import (
	"context"
	"fmt"
	"sync"

	"github.com/grailbio/stencil/errors"
)

// Addr names a partition object: the node that holds it and its
// identifier in that node's object table.
type Addr struct {
	Node int    `json:"node"`
	ID   string `json:"id"`
}

// IsZero tells whether a is the zero address.
func (a Addr) IsZero() bool { return a == Addr{} }

func (a Addr) String() string {
	return fmt.Sprintf("n%d/%s", a.Node, a.ID)
}

// A Space holds partition objects across a set of nodes. Operations
// on an object are executed by the node that owns it; a Space routes
// them there.
type Space interface {
	// Create allocates a partition of the given size on node, with
	// element i initialized to init*size + i.
	Create(ctx context.Context, node, size int, init float64) (Addr, error)
	// Put stores data as a new object on node. Put takes ownership of
	// the caller's reference to data, also when it fails.
	Put(ctx context.Context, node int, data *Data) (Addr, error)
	// Fetch returns the subset of the object's data selected by kind.
	// The caller must release the returned data.
	Fetch(ctx context.Context, addr Addr, kind Kind) (*Data, error)
	// Migrate moves the object to node and returns its new address.
	// On failure the object remains valid at addr.
	Migrate(ctx context.Context, addr Addr, node int) (Addr, error)
	// Free drops the object.
	Free(ctx context.Context, addr Addr) error
}

// future is a one-shot, write-once address cell.
type future struct {
	once sync.Once
	done chan struct{}
	addr Addr
	err  error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) set(addr Addr, err error) bool {
	ok := false
	f.once.Do(func() {
		f.addr, f.err = addr, err
		close(f.done)
		ok = true
	})
	return ok
}

// Ref is a location-transparent reference to a partition object
// whose address may not be known yet: it is a future of an Addr
// together with the Space that operates on it. Refs are values;
// copies refer to the same object. The zero Ref is invalid.
type Ref struct {
	space Space
	f     *future
}

// Ready returns a Ref to the object at addr.
func Ready(space Space, addr Addr) Ref {
	f := newFuture()
	f.set(addr, nil)
	return Ref{space, f}
}

// Failed returns a Ref whose resolution failed with err.
func Failed(space Space, err error) Ref {
	f := newFuture()
	f.set(Addr{}, err)
	return Ref{space, f}
}

// Async returns a Ref to the object produced by fn, which is run
// in a new goroutine.
func Async(space Space, fn func() (Addr, error)) Ref {
	f := newFuture()
	go func() {
		f.set(fn())
	}()
	return Ref{space, f}
}

// New creates a partition of the given size on node; see
// Space.Create.
func New(ctx context.Context, space Space, node, size int, init float64) Ref {
	return Async(space, func() (Addr, error) {
		return space.Create(ctx, node, size, init)
	})
}

// Colocated stores data as a new object on the node that holds near,
// once near's address is known. Colocated takes ownership of data.
func Colocated(ctx context.Context, space Space, near Ref, data *Data) Ref {
	return Async(space, func() (Addr, error) {
		return PutNear(ctx, space, near, data)
	})
}

// PutNear is the synchronous form of Colocated.
func PutNear(ctx context.Context, space Space, near Ref, data *Data) (Addr, error) {
	addr, err := near.Addr(ctx)
	if err != nil {
		data.Release()
		return Addr{}, err
	}
	return space.Put(ctx, addr.Node, data)
}

// Valid tells whether r was constructed (as opposed to the zero Ref).
func (r Ref) Valid() bool { return r.f != nil }

// Space returns the space r refers into.
func (r Ref) Space() Space { return r.space }

// Done returns a channel that is closed once r's address is resolved
// (or has failed to resolve).
func (r Ref) Done() <-chan struct{} { return r.f.done }

// Err returns the resolution error of a resolved Ref.
func (r Ref) Err() error {
	select {
	case <-r.f.done:
		return r.f.err
	default:
		return nil
	}
}

// Addr waits for r to resolve and returns its address.
func (r Ref) Addr(ctx context.Context) (Addr, error) {
	if !r.Valid() {
		return Addr{}, errors.E("addr", errors.Invalid, errors.New("invalid partition reference"))
	}
	select {
	case <-r.f.done:
		return r.f.addr, r.f.err
	case <-ctx.Done():
		return Addr{}, errors.E("addr", ctx.Err())
	}
}

// Data fetches the subset of the partition's data selected by kind
// from the node that owns it. The result is never cached; the caller
// must release it.
func (r Ref) Data(ctx context.Context, kind Kind) (*Data, error) {
	addr, err := r.Addr(ctx)
	if err != nil {
		return nil, err
	}
	return r.space.Fetch(ctx, addr, kind)
}

// Migrate moves the partition to node, returning a Ref to its new
// location. On failure r remains valid.
func (r Ref) Migrate(ctx context.Context, node int) (Ref, error) {
	addr, err := r.Addr(ctx)
	if err != nil {
		return r, err
	}
	naddr, err := r.space.Migrate(ctx, addr, node)
	if err != nil {
		return r, err
	}
	return Ready(r.space, naddr), nil
}

// Free drops the partition object. Refs that failed to resolve have
// nothing to free.
func (r Ref) Free(ctx context.Context) error {
	addr, err := r.Addr(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return nil
	}
	return r.space.Free(ctx, addr)
}

func (r Ref) String() string {
	if !r.Valid() {
		return "ref(invalid)"
	}
	select {
	case <-r.f.done:
		if r.f.err != nil {
			return "ref(error)"
		}
		return "ref(" + r.f.addr.String() + ")"
	default:
		return "ref(pending)"
	}
}

// A Promise is a Ref whose address is supplied later by a call to
// Set.
type Promise struct {
	ref Ref
}

// NewPromise returns a new, unresolved promise.
func NewPromise(space Space) *Promise {
	return &Promise{Ref{space, newFuture()}}
}

// Ref returns the promise's reference.
func (p *Promise) Ref() Ref { return p.ref }

// Set resolves the promise. It reports false if the promise had
// already been resolved, in which case the call has no effect.
func (p *Promise) Set(addr Addr, err error) bool {
	return p.ref.f.set(addr, err)
}
