// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package partition

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/grailbio/stencil/errors"
)

// Kind selects the subset of a partition's data returned by a fetch.
type Kind int

const (
	// Full selects the whole partition.
	Full Kind = iota
	// LeftBoundary selects the partition's first element.
	LeftBoundary
	// RightBoundary selects the partition's last element.
	RightBoundary
)

var kindNames = [...]string{
	Full:          "full",
	LeftBoundary:  "left",
	RightBoundary: "right",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// ParseKind parses a kind as rendered by Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return Full, errors.E("parsekind", s, errors.Invalid, errors.New("unknown partition kind"))
}

// storage is a reference counted array of grid values. When the last
// reference is dropped, the array is returned to the allocator it
// came from.
type storage struct {
	buf   []float64
	refs  int32
	alloc *Allocator
}

func (s *storage) retain() {
	atomic.AddInt32(&s.refs, 1)
}

func (s *storage) release() {
	switch n := atomic.AddInt32(&s.refs, -1); {
	case n == 0:
		s.alloc.put(s.buf)
		s.buf = nil
	case n < 0:
		panic(errors.E("release", errors.Contract, errors.New("storage released too many times")))
	}
}

// Data is a reference to (a window of) a partition's grid values.
//
// A full Data has the index domain [0, Size()). A boundary view,
// created by NewView, has the single-element domain {Min()} while
// Size() still reports the size of the partition it was taken from;
// it shares storage with that partition, so writes through either
// are visible through both. Accessing an index outside the domain
// panics with an errors.Contract error.
//
// Every Data holds one reference to its storage; the holder must call
// Release exactly once when done with it.
type Data struct {
	s *storage
	// off is the logical index of s.buf[0].
	off int
	// size is the number of elements in the partition.
	size int
	// min and n describe the index domain [min, min+n).
	min, n int

	released int32
}

// NewView returns a one-element view of base at index min. The view
// retains base's storage; base may be released independently.
func NewView(base *Data, min int) *Data {
	if min < 0 || min >= base.size || !base.contains(min) {
		panic(errors.E("view", strconv.Itoa(min), errors.Contract,
			fmt.Errorf("index outside domain [%d, %d) of partition of size %d", base.min, base.min+base.n, base.size)))
	}
	base.s.retain()
	return &Data{s: base.s, off: base.off, size: base.size, min: min, n: 1}
}

// View is shorthand for NewView(d, min).
func (d *Data) View(min int) *Data {
	return NewView(d, min)
}

// Share returns a new reference to d's storage with the same domain.
func (d *Data) Share() *Data {
	d.s.retain()
	return &Data{s: d.s, off: d.off, size: d.size, min: d.min, n: d.n}
}

// Get returns the subset of d selected by kind: Full shares d,
// LeftBoundary and RightBoundary are views of its first and last
// elements.
func (d *Data) Get(kind Kind) *Data {
	switch kind {
	case LeftBoundary:
		return d.View(0)
	case RightBoundary:
		return d.View(d.size - 1)
	default:
		return d.Share()
	}
}

// Size returns the number of elements in the partition.
func (d *Data) Size() int { return d.size }

// Min returns the lowest valid index.
func (d *Data) Min() int { return d.min }

// Len returns the number of valid indices: Size() for full buffers,
// 1 for views.
func (d *Data) Len() int { return d.n }

// IsView tells whether d is a boundary view.
func (d *Data) IsView() bool { return d.n != d.size }

func (d *Data) contains(idx int) bool {
	return idx >= d.min && idx < d.min+d.n
}

func (d *Data) index(idx int) int {
	if !d.contains(idx) {
		panic(errors.E("index", strconv.Itoa(idx), errors.Contract,
			fmt.Errorf("index outside domain [%d, %d)", d.min, d.min+d.n)))
	}
	return idx - d.off
}

// At returns the value at index idx.
func (d *Data) At(idx int) float64 {
	return d.s.buf[d.index(idx)]
}

// Set sets the value at index idx.
func (d *Data) Set(idx int, v float64) {
	d.s.buf[d.index(idx)] = v
}

// Values returns a copy of the values in d's domain.
func (d *Data) Values() []float64 {
	vals := make([]float64, d.n)
	copy(vals, d.s.buf[d.min-d.off:d.min-d.off+d.n])
	return vals
}

// Release drops d's reference to its storage. Releasing the same
// Data twice is a contract violation.
func (d *Data) Release() {
	if !atomic.CompareAndSwapInt32(&d.released, 0, 1) {
		panic(errors.E("release", errors.Contract, errors.New("partition data released twice")))
	}
	d.s.release()
}

// String renders a short description of d, used in logs.
func (d *Data) String() string {
	if d.IsView() {
		return fmt.Sprintf("view[%d of %d]", d.min, d.size)
	}
	return fmt.Sprintf("data[%d]", d.size)
}
