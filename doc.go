// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
Package stencil implements a distributed runtime for explicit 1-D
stencil computations, as exemplified by the heat equation.

A one-dimensional grid of NP*NX points is cut into NP partitions of NX
points, which are spread across a ring of nodes (localities). Each
node runs a stepper that advances its partitions through NT time
steps. Within a node, partitions read their neighbors' boundary
elements directly; across nodes, the boundary elements of the first
and last partitions are shipped to the neighboring node's stepper
after every step. A sliding window of depth ND bounds how far any
stepper may run ahead of the last step it has confirmed complete.

Partitions are addressable objects that live in a node's object
table (package locality) and are referenced by futures
(partition.Ref). A partition may be migrated live to another node;
computations already holding a reference are redirected.

The packages are layered as follows:

	partition   buffers, pooled allocation, addresses and references
	locality    per-node object tables, component registry, topology
	stepper     the time loop, neighbor mailboxes, the sliding window
	runner      validation, distribution, gathering and timing
	rest        HTTP transport used by locality/client and locality/server

Commands stencil and stencilet run the coordinator and node agent
respectively.
*/
package stencil
