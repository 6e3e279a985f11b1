// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package partition defines the grid partitions operated on by the
// stencil runtime: reference-counted value buffers (Data) with
// one-element boundary views that alias their origin's storage, a
// pooling Allocator, and location-transparent references (Ref) to
// partition objects held by the nodes of a Space.
package partition
