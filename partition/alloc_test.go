// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package partition

import (
	"sync"
	"testing"
)

func TestAllocatorReuse(t *testing.T) {
	a := NewAllocator(0)
	d1, d2 := a.New(8), a.New(8)
	p1, p2 := &d1.s.buf[0], &d2.s.buf[0]
	d1.Release()
	d2.Release()
	if got, want := a.Stats(), (AllocatorStats{Free: 2, Misses: 2}); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	// LIFO: the most recently released array is handed out first.
	d3 := a.New(8)
	if &d3.s.buf[0] != p2 {
		t.Error("expected most recently released storage")
	}
	d4 := a.New(8)
	if &d4.s.buf[0] != p1 {
		t.Error("expected remaining pooled storage")
	}
	// Pools are keyed by size.
	d5 := a.New(4)
	if got, want := a.Stats(), (AllocatorStats{Free: 0, Hits: 2, Misses: 3}); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	d3.Release()
	d4.Release()
	d5.Release()
}

func TestAllocatorMaxDepth(t *testing.T) {
	a := NewAllocator(2)
	var ds []*Data
	for i := 0; i < 5; i++ {
		ds = append(ds, a.New(3))
	}
	for _, d := range ds {
		d.Release()
	}
	if got, want := a.Stats(), (AllocatorStats{Free: 2, Misses: 5, Dropped: 3}); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestAllocatorConcurrent(t *testing.T) {
	a := NewAllocator(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d := a.NewInit(16, float64(i))
				v := d.Get(LeftBoundary)
				d.Release()
				if got, want := v.At(0), float64(16*i); got != want {
					t.Errorf("got %v, want %v", got, want)
				}
				v.Release()
			}
		}(i)
	}
	wg.Wait()
	stats := a.Stats()
	if got, want := stats.Hits+stats.Misses, int64(800); got != want {
		t.Errorf("got %v allocations, want %v", got, want)
	}
	if stats.Free > 8 {
		t.Errorf("pooled %d arrays, expected at most 8", stats.Free)
	}
}

func TestNilAllocator(t *testing.T) {
	var a *Allocator
	d := a.NewInit(2, 1)
	if got, want := d.At(1), 3.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	d.Release()
	if got := a.Stats(); got != (AllocatorStats{}) {
		t.Errorf("got %+v, want zero stats", got)
	}
}

func TestDefaultAllocator(t *testing.T) {
	if DefaultAllocator() != DefaultAllocator() {
		t.Error("default allocator is not shared")
	}
}
