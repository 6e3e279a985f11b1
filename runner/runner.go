// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package runner drives a distributed stencil computation over a
// cluster of localities: it distributes the partitions over the
// nodes, spawns a stepper on each node, runs their time loops, and
// gathers the resulting solution.
package runner

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/stencil"
	"github.com/grailbio/stencil/errors"
	"github.com/grailbio/stencil/locality"
	"github.com/grailbio/stencil/log"
	"github.com/grailbio/stencil/partition"
	"github.com/grailbio/stencil/trace"
	"golang.org/x/sync/errgroup"
)

// Migration relocates a partition during a run.
type Migration struct {
	// Node is the node whose stepper performs the migration.
	Node int `yaml:"node"`
	// Step is the time step before which the partition is migrated.
	Step int `yaml:"step"`
	// Partition is the index of the partition among the node's
	// partitions.
	Partition int `yaml:"partition"`
	// Target is the node to which the partition is migrated.
	Target int `yaml:"target"`
}

// Runner runs stencil computations.
type Runner struct {
	stencil.Params
	// Cluster is the cluster on which computations are run.
	Cluster *locality.Cluster
	// Migrate, if set, relocates a partition during the run.
	Migrate *Migration
	// Keep retains the final partitions after gathering them. The
	// caller then owns the partitions in Result.Partitions.
	Keep bool
	// Log receives progress messages. It may be nil.
	Log *log.Logger
}

// Result is the outcome of a run.
type Result struct {
	// Nodes is the number of localities that took part in the run.
	Nodes int
	// Partitions holds the final partitions of each node, in
	// partition order.
	Partitions [][]partition.Addr
	// Solution is the final state of the grid: the values of every
	// node's partitions in node order, then partition order.
	Solution []float64
	// Elapsed is the time taken to compute and gather the solution.
	Elapsed time.Duration
}

// Run performs the computation described by r's parameters. Invalid
// parameters are reported, with kind errors.Invalid, before any work
// is started.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	n := r.Cluster.Size()
	if err := r.Params.Validate(n); err != nil {
		return Result{}, err
	}
	if m := r.Migrate; m != nil && (m.Node < 0 || m.Node >= n) {
		return Result{}, errors.E("run", errors.Invalid, fmt.Errorf("migration source node %d outside cluster of %d", m.Node, n))
	}
	basename := "stepper-" + uuid.New().String()[:8]
	ctx, done := trace.Start(ctx, trace.Run, basename, fmt.Sprintf("stencil over %d nodes", n))
	defer done()

	localities := r.Cluster.Localities()
	err := traverse.Each(n, func(i int) error {
		return localities[i].Spawn(ctx, basename, i, n)
	})
	defer func() {
		// Components are released even if the run was canceled.
		err := traverse.Each(n, func(i int) error {
			return localities[i].Release(context.Background(), locality.Name(basename, i))
		})
		if err != nil {
			r.Log.Errorf("release %s: %v", basename, err)
		}
	}()
	if err != nil {
		return Result{}, errors.E("run", basename, err)
	}
	r.Log.Debugf("spawned %s on %d nodes", basename, n)

	start := time.Now()
	res := Result{Nodes: n, Partitions: make([][]partition.Addr, n)}
	g, gctx := errgroup.WithContext(ctx)
	for i := range localities {
		i := i
		count, offset := r.Share(i, n)
		work := locality.Work{Params: r.Params, LocalNP: count, Offset: offset}
		if m := r.Migrate; m != nil && m.Node == i {
			work.Migrate = &locality.Migration{Step: m.Step, Partition: m.Partition, Node: m.Target}
		}
		g.Go(func() error {
			addrs, err := localities[i].Work(gctx, locality.Name(basename, i), work)
			if err != nil {
				return err
			}
			res.Partitions[i] = addrs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.free(res.Partitions)
		return Result{}, errors.E("run", basename, err)
	}

	res.Solution, err = r.gather(ctx, res.Partitions)
	res.Elapsed = time.Since(start)
	if !r.Keep {
		r.free(res.Partitions)
	}
	if err != nil {
		return Result{}, errors.E("run", basename, err)
	}
	return res, nil
}

func (r *Runner) gather(ctx context.Context, partitions [][]partition.Addr) ([]float64, error) {
	var addrs []partition.Addr
	for _, node := range partitions {
		addrs = append(addrs, node...)
	}
	values := make([][]float64, len(addrs))
	err := traverse.Each(len(addrs), func(i int) error {
		d, err := r.Cluster.Fetch(ctx, addrs[i], partition.Full)
		if err != nil {
			return err
		}
		values[i] = append([]float64(nil), d.Values()...)
		d.Release()
		return nil
	})
	if err != nil {
		return nil, err
	}
	solution := make([]float64, 0, len(addrs)*r.NX)
	for _, v := range values {
		solution = append(solution, v...)
	}
	return solution, nil
}

func (r *Runner) free(partitions [][]partition.Addr) {
	for _, node := range partitions {
		for _, addr := range node {
			if err := r.Cluster.Free(context.Background(), addr); err != nil {
				r.Log.Errorf("free %v: %v", addr, err)
			}
		}
	}
}

// WriteSolution writes the solution, one "U[i] = v" line per grid
// point.
func WriteSolution(w io.Writer, res Result) error {
	for i, v := range res.Solution {
		if _, err := fmt.Fprintf(w, "U[%d] = %v\n", i, v); err != nil {
			return err
		}
	}
	return nil
}

// WriteTimings writes a CSV record of the run's timing, preceded by a
// header row if header is true.
func WriteTimings(w io.Writer, res Result, params stencil.Params, header bool) error {
	if header {
		if _, err := fmt.Fprintln(w, "Localities,OS_Threads,Execution_Time_sec,Points_per_Partition,Partitions,Time_Steps"); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d,%d,%.9f,%d,%d,%d\n",
		res.Nodes, runtime.GOMAXPROCS(0), res.Elapsed.Seconds(), params.NX, params.NP, params.NT)
	return err
}
