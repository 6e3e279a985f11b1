// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stepper

import (
	"context"
	"time"

	"github.com/grailbio/stencil"
	"github.com/grailbio/stencil/metrics"
	"github.com/grailbio/stencil/partition"
	"golang.org/x/sync/errgroup"
)

// heat advances the partition middle by one time step, given its
// left and right neighbors, and stores the result on middle's node.
// The interior is computed as soon as middle's data is available; the
// two edge elements wait for the neighbors' boundary elements, which
// are fetched concurrently.
func heat(ctx context.Context, space partition.Space, alloc *partition.Allocator, op stencil.Stencil, left, middle, right partition.Ref) (partition.Addr, error) {
	start := time.Now()
	var l, r *partition.Data
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		l, err = left.Data(gctx, partition.RightBoundary)
		return err
	})
	g.Go(func() error {
		var err error
		r, err = right.Data(gctx, partition.LeftBoundary)
		return err
	})
	defer func() {
		if l != nil {
			l.Release()
		}
		if r != nil {
			r.Release()
		}
	}()

	m, err := middle.Data(ctx, partition.Full)
	if err != nil {
		_ = g.Wait()
		return partition.Addr{}, err
	}
	defer m.Release()
	size := m.Size()
	next := alloc.New(size)
	for i := 1; i < size-1; i++ {
		next.Set(i, op(m.At(i-1), m.At(i), m.At(i+1)))
	}

	if err := g.Wait(); err != nil {
		next.Release()
		return partition.Addr{}, err
	}
	lv, rv := l.At(l.Size()-1), r.At(0)
	if size == 1 {
		next.Set(0, op(lv, m.At(0), rv))
	} else {
		next.Set(0, op(lv, m.At(0), m.At(1)))
		next.Set(size-1, op(m.At(size-2), m.At(size-1), rv))
	}
	addr, err := partition.PutNear(ctx, space, middle, next)
	if err != nil {
		return partition.Addr{}, err
	}
	metrics.GetPartitionsComputedCountCounter(ctx).Inc()
	metrics.GetStepLatencySecondsHistogram(ctx).Observe(time.Since(start).Seconds())
	return addr, nil
}
