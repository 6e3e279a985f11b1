// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stencil

import (
	"fmt"

	"github.com/grailbio/stencil/errors"
)

// Default run parameters.
const (
	DefaultK  = 0.5
	DefaultDt = 1.0
	DefaultDx = 1.0
	DefaultNT = 45
	DefaultNX = 10
	DefaultNP = 10
	DefaultND = 10
)

// Params describes a stencil run.
type Params struct {
	// K is the heat transfer coefficient.
	K float64 `json:"k" yaml:"k"`
	// Dt is the time step.
	Dt float64 `json:"dt" yaml:"dt"`
	// Dx is the grid spacing.
	Dx float64 `json:"dx" yaml:"dx"`
	// NT is the number of time steps.
	NT int `json:"nt" yaml:"nt"`
	// NX is the number of grid points per partition.
	NX int `json:"nx" yaml:"nx"`
	// NP is the total number of partitions across all nodes.
	NP int `json:"np" yaml:"np"`
	// ND is the sliding window depth: no node may compute more than
	// ND steps past the latest step it has confirmed complete.
	ND int `json:"nd" yaml:"nd"`
}

// DefaultParams returns the default run parameters.
func DefaultParams() Params {
	return Params{
		K:  DefaultK,
		Dt: DefaultDt,
		Dx: DefaultDx,
		NT: DefaultNT,
		NX: DefaultNX,
		NP: DefaultNP,
		ND: DefaultND,
	}
}

// Validate checks the parameters for a run on the given number of
// nodes. It returns an errors.Invalid error describing the first
// problem found.
func (p Params) Validate(nodes int) error {
	var msg string
	switch {
	case nodes < 1:
		msg = fmt.Sprintf("need at least one node, got %d", nodes)
	case p.NX < 1:
		msg = fmt.Sprintf("nx must be positive, got %d", p.NX)
	case p.NT < 0:
		msg = fmt.Sprintf("nt must not be negative, got %d", p.NT)
	case p.ND < 1:
		msg = fmt.Sprintf("nd must be positive, got %d", p.ND)
	case p.NP < nodes:
		msg = fmt.Sprintf("the number of partitions (%d) must not be smaller than the number of nodes (%d)", p.NP, nodes)
	case p.Dx == 0:
		msg = "dx must be nonzero"
	default:
		return nil
	}
	return errors.E("validate", errors.Invalid, errors.New(msg))
}

// Stencil computes the next value of a grid point from its left
// neighbor l, its current value m and its right neighbor r.
type Stencil func(l, m, r float64) float64

// Heat returns the explicit finite-difference stencil for the 1-D
// heat equation:
//
//	m + k*dt/dx² * (l - 2m + r)
func Heat(k, dt, dx float64) Stencil {
	c := k * dt / (dx * dx)
	return func(l, m, r float64) float64 {
		return m + c*(l-2*m+r)
	}
}

// Stencil returns the heat stencil for these parameters.
func (p Params) Stencil() Stencil {
	return Heat(p.K, p.Dt, p.Dx)
}

// Share returns the number of partitions assigned to node i of n
// when p.NP partitions are spread as evenly as possible, and the
// global index of the node's first partition. Lower-numbered nodes
// receive the remainder.
func (p Params) Share(i, n int) (count, offset int) {
	q, r := p.NP/n, p.NP%n
	count = q
	if i < r {
		count++
	}
	offset = i * q
	if i < r {
		offset += i
	} else {
		offset += r
	}
	return count, offset
}
