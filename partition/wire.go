// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package partition

import (
	"fmt"

	"github.com/grailbio/stencil/errors"
)

// Wire is the transport representation of a Data. Only the values
// in the data's domain are carried: one for a boundary view, Size
// for a full partition.
type Wire struct {
	Size   int       `json:"size"`
	Min    int       `json:"min"`
	Values []float64 `json:"values"`
}

// Wire returns the transport representation of d.
func (d *Data) Wire() Wire {
	return Wire{Size: d.size, Min: d.min, Values: d.Values()}
}

// FromWire reconstitutes a Data from its transport representation.
// The returned Data owns fresh storage holding only the transported
// values.
func (a *Allocator) FromWire(w Wire) (*Data, error) {
	n := len(w.Values)
	switch {
	case w.Size < 1:
		return nil, errors.E("fromwire", errors.Invalid, fmt.Errorf("invalid size %d", w.Size))
	case n != 1 && n != w.Size:
		return nil, errors.E("fromwire", errors.Invalid, fmt.Errorf("got %d values for partition of size %d", n, w.Size))
	case w.Min < 0 || w.Min+n > w.Size:
		return nil, errors.E("fromwire", errors.Invalid, fmt.Errorf("domain [%d, %d) outside partition of size %d", w.Min, w.Min+n, w.Size))
	}
	buf := a.get(n)
	copy(buf, w.Values)
	return a.data(buf, w.Min, w.Size, w.Min, n), nil
}
