// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package locality

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/grailbio/base/sync/ctxsync"
	"github.com/grailbio/stencil/errors"
	"github.com/grailbio/stencil/log"
	"github.com/grailbio/stencil/metrics"
	"github.com/grailbio/stencil/partition"
	"github.com/grailbio/stencil/trace"
)

// object is an entry in a locality's object table.
type object struct {
	data *partition.Data
	// pins counts the active operations that read data.
	pins int
	// migrating is set while the object is being copied to another
	// node.
	migrating bool
	// origin is the address the object migrated from, if any.
	origin partition.Addr
}

// forwarding records the new address of an object that migrated away,
// and the address the object had migrated from before that, if any.
type forwarding struct {
	to, origin partition.Addr
}

// Local is an in-process locality. Objects are held in memory, and
// components run in the calling process.
type Local struct {
	// Node is the locality's index in its cluster.
	Node int
	// Cluster is the cluster to which the locality belongs. It is used
	// to reach other localities when migrating objects and to resolve
	// forwarded addresses.
	Cluster *Cluster
	// Alloc allocates the locality's partition buffers.
	Alloc *partition.Allocator
	// Log is the locality's logger. It may be nil.
	Log *log.Logger
	// Spawner constructs components for Spawn calls.
	Spawner SpawnFunc

	mu   sync.Mutex
	cond *ctxsync.Cond

	objects map[string]*object
	// forward maps the IDs of objects that migrated away from this
	// node to their new addresses.
	forward    map[string]forwarding
	components map[string]Component
}

// NewLocal returns a new, empty locality with the given index.
func NewLocal(node int, cluster *Cluster, alloc *partition.Allocator, log *log.Logger, spawn SpawnFunc) *Local {
	l := &Local{
		Node:       node,
		Cluster:    cluster,
		Alloc:      alloc,
		Log:        log,
		Spawner:    spawn,
		objects:    make(map[string]*object),
		forward:    make(map[string]forwarding),
		components: make(map[string]Component),
	}
	l.cond = ctxsync.NewCond(&l.mu)
	return l
}

// ID implements Locality.
func (l *Local) ID() int { return l.Node }

// Ping implements Locality.
func (l *Local) Ping(ctx context.Context) error { return ctx.Err() }

func (l *Local) addr(id string) partition.Addr {
	return partition.Addr{Node: l.Node, ID: id}
}

func (l *Local) put(ctx context.Context, data *partition.Data, origin partition.Addr) partition.Addr {
	id := uuid.New().String()
	l.mu.Lock()
	l.objects[id] = &object{data: data, origin: origin}
	n := len(l.objects)
	l.mu.Unlock()
	metrics.GetObjectsLiveGauge(ctx).Set(float64(n))
	return l.addr(id)
}

// Create implements Locality.
func (l *Local) Create(ctx context.Context, size int, init float64) (partition.Addr, error) {
	if size < 1 {
		return partition.Addr{}, errors.E("create", fmt.Sprint(size), errors.Invalid, errors.New("partition size must be positive"))
	}
	return l.put(ctx, l.Alloc.NewInit(size, init), partition.Addr{}), nil
}

// Put implements Locality.
func (l *Local) Put(ctx context.Context, data *partition.Data) (partition.Addr, error) {
	if data == nil {
		return partition.Addr{}, errors.E("put", errors.Invalid, errors.New("nil data"))
	}
	return l.put(ctx, data, partition.Addr{}), nil
}

// Adopt implements Locality.
func (l *Local) Adopt(ctx context.Context, data *partition.Data, origin partition.Addr) (partition.Addr, error) {
	if data == nil {
		return partition.Addr{}, errors.E("adopt", origin.String(), errors.Invalid, errors.New("nil data"))
	}
	return l.put(ctx, data, origin), nil
}

// Forget implements Locality. Forgetting an object also forgets it
// at the address it migrated from, so that chains of forwarding
// entries are dropped together.
func (l *Local) Forget(ctx context.Context, id string) error {
	l.mu.Lock()
	fwd, ok := l.forward[id]
	delete(l.forward, id)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	l.forget(ctx, fwd.origin)
	return nil
}

// forget drops the forwarding entry at origin, if there is one.
func (l *Local) forget(ctx context.Context, origin partition.Addr) {
	if origin.IsZero() || l.Cluster == nil {
		return
	}
	if err := l.Cluster.Forget(ctx, origin); err != nil {
		l.Log.Errorf("forget %v: %v", origin, err)
	}
}

// Pin marks object id as in use by an active operation until the
// returned function is called. Pinned objects cannot migrate.
func (l *Local) Pin(ctx context.Context, id string) (unpin func(), err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	obj, ok := l.objects[id]
	if !ok {
		return nil, errors.E("pin", l.addr(id).String(), errors.NotExist)
	}
	obj.pins++
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			obj.pins--
			l.mu.Unlock()
		})
	}, nil
}

// Fetch implements Locality. Objects that migrated away from this
// node are fetched from their new location.
func (l *Local) Fetch(ctx context.Context, id string, kind partition.Kind) (*partition.Data, error) {
	start := time.Now()
	l.mu.Lock()
	obj, ok := l.objects[id]
	if !ok {
		fwd, forwarded := l.forward[id]
		l.mu.Unlock()
		if !forwarded || l.Cluster == nil {
			return nil, errors.E("fetch", l.addr(id).String(), errors.NotExist)
		}
		return l.Cluster.Fetch(ctx, fwd.to, kind)
	}
	obj.pins++
	l.mu.Unlock()
	d := obj.data.Get(kind)
	l.mu.Lock()
	obj.pins--
	l.mu.Unlock()
	metrics.GetFetchLatencySecondsHistogram(ctx, kind.String()).Observe(time.Since(start).Seconds())
	return d, nil
}

// Migrate implements Locality. Migrating an object to its own node
// is a no-op.
func (l *Local) Migrate(ctx context.Context, id string, node int) (partition.Addr, error) {
	addr := l.addr(id)
	if l.Cluster == nil {
		return addr, errors.E("migrate", addr.String(), errors.NotSupported, errors.New("locality has no cluster"))
	}
	if node < 0 || node >= l.Cluster.Size() {
		return addr, errors.E("migrate", addr.String(), errors.Invalid, fmt.Errorf("no node %d in cluster of %d", node, l.Cluster.Size()))
	}
	l.mu.Lock()
	obj, ok := l.objects[id]
	switch {
	case !ok:
		l.mu.Unlock()
		return addr, errors.E("migrate", addr.String(), errors.NotExist)
	case node == l.Node:
		l.mu.Unlock()
		return addr, nil
	case obj.pins > 0:
		l.mu.Unlock()
		return addr, errors.E("migrate", addr.String(), errors.Migration, errors.New("object is pinned"))
	case obj.migrating:
		l.mu.Unlock()
		return addr, errors.E("migrate", addr.String(), errors.Migration, errors.New("object is already migrating"))
	}
	obj.migrating = true
	data := obj.data.Share()
	l.mu.Unlock()

	ctx, done := trace.Start(ctx, trace.Migration, addr.String(), fmt.Sprintf("migrate %s to node %d", addr, node))
	defer done()
	naddr, err := l.Cluster.Adopt(ctx, node, data, addr)
	l.mu.Lock()
	if err != nil {
		obj.migrating = false
		l.mu.Unlock()
		trace.Error(ctx, err)
		return addr, errors.E("migrate", addr.String(), errors.Migration, err)
	}
	delete(l.objects, id)
	l.forward[id] = forwarding{to: naddr, origin: obj.origin}
	n := len(l.objects)
	l.mu.Unlock()
	obj.data.Release()
	metrics.GetObjectsLiveGauge(ctx).Set(float64(n))
	trace.Note(ctx, "target", naddr.String())
	l.Log.Debugf("migrated %s to %s", addr, naddr)
	return naddr, nil
}

// Free implements Locality. Freeing a migrated object frees it at its
// new location. Either way, the forwarding entries left by its
// migrations are dropped.
func (l *Local) Free(ctx context.Context, id string) error {
	l.mu.Lock()
	obj, ok := l.objects[id]
	if !ok {
		fwd, forwarded := l.forward[id]
		delete(l.forward, id)
		l.mu.Unlock()
		if !forwarded || l.Cluster == nil {
			return errors.E("free", l.addr(id).String(), errors.NotExist)
		}
		l.forget(ctx, fwd.origin)
		return l.Cluster.Free(ctx, fwd.to)
	}
	if obj.migrating {
		l.mu.Unlock()
		return errors.E("free", l.addr(id).String(), errors.Unavailable, errors.New("object is migrating"))
	}
	delete(l.objects, id)
	n := len(l.objects)
	l.mu.Unlock()
	obj.data.Release()
	l.forget(ctx, obj.origin)
	metrics.GetObjectsLiveGauge(ctx).Set(float64(n))
	if l.Alloc != nil {
		metrics.GetAllocatorFreeBuffersGauge(ctx).Set(float64(l.Alloc.Stats().Free))
	}
	return nil
}

// Forwarding returns the number of objects that migrated away from
// the locality and are still reachable through it.
func (l *Local) Forwarding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.forward)
}

// Len returns the number of objects held by the locality.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.objects)
}

// Register registers component c under name, waking up callers that
// are waiting for it. It is an error to register a name twice.
func (l *Local) Register(name string, c Component) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.components[name]; ok {
		return errors.E("register", name, errors.Invalid, errors.New("component already registered"))
	}
	l.components[name] = c
	l.cond.Broadcast()
	return nil
}

// component returns the component registered under name, waiting for
// its registration.
func (l *Local) component(ctx context.Context, name string) (Component, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var err error
	for l.components[name] == nil && err == nil {
		err = l.cond.Wait(ctx)
	}
	if err != nil {
		return nil, errors.E("lookup", name, err)
	}
	return l.components[name], nil
}

// Spawn implements Locality.
func (l *Local) Spawn(ctx context.Context, basename string, i, nodes int) error {
	if l.Spawner == nil {
		return errors.E("spawn", basename, errors.NotSupported, errors.New("locality cannot spawn components"))
	}
	name := Name(basename, i)
	c, err := l.Spawner(l, name, i, nodes)
	if err != nil {
		return errors.E("spawn", name, err)
	}
	if err := l.Register(name, c); err != nil {
		c.ReleaseDependencies()
		return err
	}
	l.Log.Debugf("spawned %s", name)
	return nil
}

// Lookup implements Locality.
func (l *Local) Lookup(ctx context.Context, name string) error {
	_, err := l.component(ctx, name)
	return err
}

// Deliver implements Locality.
func (l *Local) Deliver(ctx context.Context, name string, dir Direction, step int, data *partition.Data) error {
	c, err := l.component(ctx, name)
	if err != nil {
		data.Release()
		return errors.E("deliver", name, err)
	}
	addr := l.put(ctx, data, partition.Addr{})
	if err := c.Receive(dir, step, addr); err != nil {
		if ferr := l.Free(ctx, addr.ID); ferr != nil {
			l.Log.Errorf("free %s: %v", addr, ferr)
		}
		return errors.E("deliver", name, err)
	}
	return nil
}

// Work implements Locality.
func (l *Local) Work(ctx context.Context, name string, work Work) ([]partition.Addr, error) {
	c, err := l.component(ctx, name)
	if err != nil {
		return nil, errors.E("work", name, err)
	}
	return c.Work(ctx, work)
}

// Unregister removes the component registered under name and
// returns it, or nil if there is none.
func (l *Local) Unregister(name string) Component {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.components[name]
	delete(l.components, name)
	return c
}

// Release implements Locality. The component's dependencies are
// released before it is unregistered.
func (l *Local) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	c := l.components[name]
	l.mu.Unlock()
	if c != nil {
		c.ReleaseDependencies()
	}
	l.Unregister(name)
	return nil
}
