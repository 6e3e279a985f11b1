// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stencil

import (
	"testing"

	"github.com/grailbio/stencil/errors"
)

func TestHeat(t *testing.T) {
	heat := Heat(0.5, 1, 1)
	for _, c := range []struct {
		l, m, r, want float64
	}{
		{0, 0, 0, 0},
		{1, 1, 1, 1},
		{0, 1, 0, 0},
		{1, 0, 1, 1},
		{2, 4, 6, 4},
		{0, 2, 1, 0.5},
	} {
		if got := heat(c.l, c.m, c.r); got != c.want {
			t.Errorf("heat(%v, %v, %v): got %v, want %v", c.l, c.m, c.r, got, c.want)
		}
	}
	heat = Heat(0.25, 2, 2)
	if got, want := heat(4, 0, 0), 0.5; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestValidate(t *testing.T) {
	p := DefaultParams()
	if err := p.Validate(4); err != nil {
		t.Fatal(err)
	}
	if err := p.Validate(11); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
	p.NX = 0
	if err := p.Validate(1); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
	p = DefaultParams()
	p.ND = 0
	if err := p.Validate(1); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
}

func TestShare(t *testing.T) {
	p := Params{NP: 10}
	var (
		total int
		next  int
	)
	want := []int{4, 3, 3}
	for i := 0; i < 3; i++ {
		count, offset := p.Share(i, 3)
		if count != want[i] {
			t.Errorf("node %d: got %d partitions, want %d", i, count, want[i])
		}
		if offset != next {
			t.Errorf("node %d: got offset %d, want %d", i, offset, next)
		}
		next += count
		total += count
	}
	if total != p.NP {
		t.Errorf("got %d partitions, want %d", total, p.NP)
	}
}
