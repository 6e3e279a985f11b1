// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package partition

import (
	"fmt"
	"sync"

	"github.com/grailbio/stencil/errors"
)

// AllocatorStats is a snapshot of an allocator's pool.
type AllocatorStats struct {
	// Free is the number of arrays currently pooled.
	Free int
	// Hits counts allocations served from the pool.
	Hits int64
	// Misses counts allocations that required a new array.
	Misses int64
	// Dropped counts arrays not pooled because their free list was full.
	Dropped int64
}

// An Allocator hands out partition storage, recycling the arrays of
// released partitions. Arrays are pooled in LIFO free lists keyed by
// size, each holding at most MaxDepth arrays (unbounded if
// MaxDepth is 0); arrays released beyond that are left to the garbage
// collector.
//
// A nil *Allocator is valid: it allocates fresh arrays and never
// pools them.
type Allocator struct {
	// MaxDepth bounds the length of each free list.
	MaxDepth int

	mu    sync.Mutex
	free  map[int][][]float64
	stats AllocatorStats
}

// NewAllocator returns an allocator whose free lists hold at most
// maxDepth arrays each.
func NewAllocator(maxDepth int) *Allocator {
	return &Allocator{MaxDepth: maxDepth}
}

var (
	defaultOnce      sync.Once
	defaultAllocator *Allocator
)

// DefaultAllocator returns the process-wide allocator, constructing
// it on first use.
func DefaultAllocator() *Allocator {
	defaultOnce.Do(func() {
		defaultAllocator = NewAllocator(0)
	})
	return defaultAllocator
}

func (a *Allocator) get(size int) []float64 {
	if a == nil {
		return make([]float64, size)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if list := a.free[size]; len(list) > 0 {
		buf := list[len(list)-1]
		list[len(list)-1] = nil
		a.free[size] = list[:len(list)-1]
		a.stats.Free--
		a.stats.Hits++
		return buf
	}
	a.stats.Misses++
	return make([]float64, size)
}

func (a *Allocator) put(buf []float64) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.free == nil {
		a.free = make(map[int][][]float64)
	}
	size := len(buf)
	if a.MaxDepth > 0 && len(a.free[size]) >= a.MaxDepth {
		a.stats.Dropped++
		return
	}
	a.free[size] = append(a.free[size], buf)
	a.stats.Free++
}

func (a *Allocator) data(buf []float64, off, size, min, n int) *Data {
	return &Data{
		s:    &storage{buf: buf, refs: 1, alloc: a},
		off:  off,
		size: size,
		min:  min,
		n:    n,
	}
}

// New returns a full partition of the given size. Its values are
// unspecified: storage may be recycled from released partitions.
func (a *Allocator) New(size int) *Data {
	if size < 1 {
		panic(errors.E("new", errors.Contract, fmt.Errorf("invalid partition size %d", size)))
	}
	return a.data(a.get(size), 0, size, 0, size)
}

// NewInit returns a full partition of the given size whose element i
// is v*size + i.
func (a *Allocator) NewInit(size int, v float64) *Data {
	d := a.New(size)
	base := v * float64(size)
	for i := range d.s.buf {
		d.s.buf[i] = base + float64(i)
	}
	return d
}

// Copy returns a full partition holding a copy of values.
func (a *Allocator) Copy(values []float64) *Data {
	d := a.New(len(values))
	copy(d.s.buf, values)
	return d
}

// Stats returns a snapshot of the allocator's pool.
func (a *Allocator) Stats() AllocatorStats {
	if a == nil {
		return AllocatorStats{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
