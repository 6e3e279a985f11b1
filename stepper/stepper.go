// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package stepper implements the per-node time loop of a distributed
// stencil computation. A Stepper owns a node's contiguous run of
// partitions and advances them step by step: each new partition is a
// future computed from three partitions of the previous step, with the
// outermost inputs supplied by the neighboring steppers through
// mailboxes. A sliding window bounds how many steps the loop may run
// ahead of the computation.
package stepper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/grailbio/stencil"
	"github.com/grailbio/stencil/errors"
	"github.com/grailbio/stencil/locality"
	"github.com/grailbio/stencil/log"
	"github.com/grailbio/stencil/metrics"
	"github.com/grailbio/stencil/partition"
	"github.com/grailbio/stencil/trace"
	"github.com/grailbio/stencil/wg"
	"golang.org/x/sync/errgroup"
)

// Stepper is the component that runs a node's time loop. Steppers
// are registered with their locality under locality.Name(basename, i)
// and find their neighbors by the same convention.
type Stepper struct {
	scheduled int64

	// Stencil, if set, is used in place of the stencil derived from
	// the work's parameters.
	Stencil stencil.Stencil

	name  string
	index int
	local *locality.Local
	space partition.Space
	log   *log.Logger

	fromLeft, fromRight *Mailbox

	mu          sync.Mutex
	left, right locality.Peer
	running     bool
}

// Spawn is a locality.SpawnFunc that constructs steppers.
func Spawn(l *locality.Local, name string, i, nodes int) (locality.Component, error) {
	return New(l, name, i, nodes)
}

// New returns the stepper with index i of a run over nodes
// localities, hosted by l and registered as name.
func New(l *locality.Local, name string, i, nodes int) (*Stepper, error) {
	if l.Cluster == nil {
		return nil, errors.E("newstepper", name, errors.Invalid, errors.New("locality is not part of a cluster"))
	}
	if nodes < 1 || i < 0 || i >= nodes {
		return nil, errors.E("newstepper", name, errors.Invalid, fmt.Errorf("index %d outside cluster of %d", i, nodes))
	}
	basename, _, err := locality.ParseName(name)
	if err != nil {
		return nil, err
	}
	left := locality.Neighbor(i, locality.Left, nodes)
	right := locality.Neighbor(i, locality.Right, nodes)
	return &Stepper{
		name:      name,
		index:     i,
		local:     l,
		space:     l.Cluster,
		log:       l.Log.Tee(nil, name+": "),
		fromLeft:  NewMailbox(l.Cluster),
		fromRight: NewMailbox(l.Cluster),
		left:      l.Cluster.Peer(left, locality.Name(basename, left)),
		right:     l.Cluster.Peer(right, locality.Name(basename, right)),
		scheduled: -1,
	}, nil
}

// Name returns the name under which the stepper is registered.
func (s *Stepper) Name() string { return s.name }

// Scheduled returns the latest step whose computation has been
// scheduled, or -1 if none has.
func (s *Stepper) Scheduled() int {
	return int(atomic.LoadInt64(&s.scheduled))
}

// Receive implements locality.Component.
func (s *Stepper) Receive(dir locality.Direction, step int, addr partition.Addr) error {
	switch dir {
	case locality.Left:
		return s.fromLeft.Store(step, addr)
	case locality.Right:
		return s.fromRight.Store(step, addr)
	default:
		return errors.E("receive", s.name, errors.Invalid, fmt.Errorf("bad direction %v", dir))
	}
}

// ReleaseDependencies implements locality.Component. It drops the
// stepper's references to its neighbors; sends attempted afterwards
// fail.
func (s *Stepper) ReleaseDependencies() {
	s.mu.Lock()
	s.left = locality.Peer{}
	s.right = locality.Peer{}
	s.mu.Unlock()
}

func (s *Stepper) peers() (left, right locality.Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.left, s.right
}

// generation is the set of partitions that are the input to a time
// step, together with the boundary partitions received for it.
type generation struct {
	refs []partition.Ref
	// owned are the references freed when the generation is retired;
	// they differ from refs only for migrated partitions.
	owned []partition.Ref
	// users counts the tasks that read the generation.
	users wg.WaitGroup
}

func newGeneration(refs []partition.Ref) *generation {
	return &generation{refs: refs, owned: append([]partition.Ref(nil), refs...)}
}

// send delivers the boundary element of ref selected by kind to peer,
// as the input to step. Send runs in the background on g and counts
// as a user of gen.
func (s *Stepper) send(ctx context.Context, g *errgroup.Group, gen *generation, peer locality.Peer, dir locality.Direction, step int, ref partition.Ref, kind partition.Kind) {
	gen.users.Add(1)
	g.Go(func() error {
		defer gen.users.Done()
		data, err := ref.Data(ctx, kind)
		if err != nil {
			return err
		}
		if err := peer.Deliver(ctx, dir, step, data); err != nil {
			return errors.E("send", peer.String(), fmt.Sprint(step), err)
		}
		metrics.GetBoundariesSentCountCounter(ctx, dir.Opposite().String()).Inc()
		return nil
	})
}

// sendBoundaries sends the outermost elements of gen, the input to
// step, to the neighbors: the first element of the leftmost partition
// to the left neighbor, and the last element of the rightmost
// partition to the right neighbor.
func (s *Stepper) sendBoundaries(ctx context.Context, g *errgroup.Group, gen *generation, step int) {
	left, right := s.peers()
	np := len(gen.refs)
	// The left neighbor receives from its right, and vice versa.
	s.send(ctx, g, gen, left, locality.Right, step, gen.refs[0], partition.LeftBoundary)
	s.send(ctx, g, gen, right, locality.Left, step, gen.refs[np-1], partition.RightBoundary)
}

// retire frees gen's partitions, and the boundary partitions in recv,
// once all of gen's users are done.
func (s *Stepper) retire(retiring *wg.WaitGroup, gen *generation, recv ...partition.Ref) {
	retiring.Add(1)
	go func() {
		defer retiring.Done()
		<-gen.users.C()
		// The run's context may be done; objects are freed regardless.
		ctx := context.Background()
		for _, ref := range append(gen.owned, recv...) {
			if err := ref.Free(ctx); err != nil {
				s.log.Errorf("free %v: %v", ref, err)
			}
		}
	}()
}

// migrate replaces partition p of gen by a reference to its migrated
// copy on node. A failed migration is logged and the original
// partition is used.
func (s *Stepper) migrate(ctx context.Context, gen *generation, p, node int) {
	old := gen.refs[p]
	gen.users.Add(1)
	gen.refs[p] = partition.Async(s.space, func() (partition.Addr, error) {
		defer gen.users.Done()
		ref, err := old.Migrate(ctx, node)
		if err != nil {
			metrics.GetMigrationsFailedCountCounter(ctx).Inc()
			s.log.Errorf("migrate partition %d to node %d: %v", p, node, err)
		} else {
			metrics.GetMigrationsCompletedCountCounter(ctx).Inc()
			s.log.Debugf("migrated partition %d to node %d", p, node)
		}
		return ref.Addr(ctx)
	})
}

// Work implements locality.Component. It runs the time loop over
// work.LocalNP partitions of work.NX elements each for work.NT steps,
// and returns the addresses of the final partitions. The caller owns
// the returned partitions.
func (s *Stepper) Work(ctx context.Context, work locality.Work) ([]partition.Addr, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, errors.E("work", s.name, errors.Invalid, errors.New("stepper is already running"))
	}
	s.running = true
	s.mu.Unlock()

	np, nt := work.LocalNP, work.NT
	switch {
	case np < 1:
		return nil, errors.E("work", s.name, errors.Invalid, fmt.Errorf("invalid partition count %d", np))
	case work.NX < 1:
		return nil, errors.E("work", s.name, errors.Invalid, fmt.Errorf("invalid partition size %d", work.NX))
	case work.ND < 1:
		return nil, errors.E("work", s.name, errors.Invalid, fmt.Errorf("invalid window depth %d", work.ND))
	case nt < 0:
		return nil, errors.E("work", s.name, errors.Invalid, fmt.Errorf("invalid step count %d", nt))
	}
	op := s.Stencil
	if op == nil {
		op = work.Stencil()
	}

	ctx, done := trace.Start(ctx, trace.Work, s.name, fmt.Sprintf("%s: %d partitions, %d steps", s.name, np, nt))
	defer done()
	left, right := s.peers()
	if err := left.Lookup(ctx); err != nil {
		return nil, errors.E("work", s.name, err)
	}
	if err := right.Lookup(ctx); err != nil {
		return nil, errors.E("work", s.name, err)
	}

	var (
		g, gctx  = errgroup.WithContext(ctx)
		retiring wg.WaitGroup
		window   = NewWindow(work.ND)
		floor    = metrics.GetWindowFloorGauge(ctx, s.name)
	)
	refs := make([]partition.Ref, np)
	for i := range refs {
		refs[i] = partition.New(gctx, s.space, s.local.Node, work.NX, float64(work.Offset+i))
	}
	cur := newGeneration(refs)
	if nt != 0 {
		s.sendBoundaries(gctx, g, cur, 0)
	}

	for t := 0; t < nt; t++ {
		if err := s.wait(gctx, window, t); err != nil {
			break
		}
		if m := work.Migrate; m != nil && m.Step == t && m.Partition >= 0 && m.Partition < np {
			s.migrate(gctx, cur, m.Partition, m.Node)
		}
		var (
			recvL = s.fromLeft.Receive(t)
			recvR = s.fromRight.Receive(t)
			next  = make([]partition.Ref, np)
			gen   = cur
		)
		for i := range next {
			l, r := recvL, recvR
			if i > 0 {
				l = gen.refs[i-1]
			}
			if i < np-1 {
				r = gen.refs[i+1]
			}
			m := gen.refs[i]
			promise := partition.NewPromise(s.space)
			gen.users.Add(1)
			g.Go(func() error {
				defer gen.users.Done()
				addr, err := heat(gctx, s.space, s.local.Alloc, op, l, m, r)
				promise.Set(addr, err)
				return err
			})
			next[i] = promise.Ref()
		}
		s.retire(&retiring, gen, recvL, recvR)
		cur = newGeneration(next)
		if t != nt-1 {
			s.sendBoundaries(gctx, g, cur, t+1)
		}
		if t%work.ND == 0 {
			t, first := t, next[0]
			g.Go(func() error {
				if _, err := first.Addr(gctx); err == nil {
					window.Signal(t)
					floor.Set(float64(t))
				}
				return nil
			})
		}
		atomic.StoreInt64(&s.scheduled, int64(t))
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	var addrs []partition.Addr
	if err == nil {
		addrs = make([]partition.Addr, np)
		for i, ref := range cur.refs {
			// The group has finished, so every reference is resolved.
			if addrs[i], err = ref.Addr(ctx); err != nil {
				break
			}
		}
	}
	if err != nil {
		addrs = nil
		s.retire(&retiring, cur)
		for _, box := range []*Mailbox{s.fromLeft, s.fromRight} {
			for _, addr := range box.Drain(err) {
				retiring.Add(1)
				go func(addr partition.Addr) {
					defer retiring.Done()
					if ferr := s.space.Free(context.Background(), addr); ferr != nil {
						s.log.Errorf("free %v: %v", addr, ferr)
					}
				}(addr)
			}
		}
	}
	<-retiring.C()
	if err != nil {
		trace.Error(ctx, err)
		return nil, errors.E("work", s.name, err)
	}
	return addrs, nil
}

// wait blocks on the window before step t is scheduled, tracing the
// stall if there is one.
func (s *Stepper) wait(ctx context.Context, window *Window, t int) error {
	if t-window.depth <= window.Floor() {
		return nil
	}
	ctx, done := trace.Start(ctx, trace.Window, fmt.Sprintf("%s/%d", s.name, t), fmt.Sprintf("step %d waits for floor %d", t, t-window.depth))
	defer done()
	s.log.Debugf("step %d: waiting for window (floor %d)", t, window.Floor())
	return window.Wait(ctx, t)
}
