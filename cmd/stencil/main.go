// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Stencil runs a distributed 1-D heat stencil and prints its timing
// as a CSV record. By default it runs on an in-process cluster; with
// a static cluster configuration it drives a set of stencilet agents.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/grailbio/base/retry"
	"github.com/grailbio/stencil"
	"github.com/grailbio/stencil/config"
	_ "github.com/grailbio/stencil/config/all"
	"github.com/grailbio/stencil/errors"
	"github.com/grailbio/stencil/locality"
	"github.com/grailbio/stencil/log"
	"github.com/grailbio/stencil/metrics"
	"github.com/grailbio/stencil/runner"
	"github.com/grailbio/stencil/trace"
)

func usage(flags *flag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, `usage: stencil [flags]

Stencil computes nt time steps of the heat equation over a ring of
np partitions of nx points each, distributed over a cluster of
localities, and prints a CSV record of the run's timing.

The cluster is configured by the "cluster" key of the configuration
file, or the -cluster flag: "local,N" runs N in-process localities
(the default, with N given by -localities); "static,host:port,..."
drives stencilet agents at the given addresses.

`)
		flags.PrintDefaults()
		os.Exit(2)
	}
}

// cmd holds the coordinator's command line state.
type cmd struct {
	flags *flag.FlagSet
	// config layers command line overrides of the provisioned keys
	// over the configuration file.
	config config.Flag

	configFile string
	localities int
	results    bool
	noHeader   bool
	migrate    bool
	retries    int
	params     stencil.Params

	stdout io.Writer
}

func newCmd(name string, stdout io.Writer) *cmd {
	c := &cmd{flags: flag.NewFlagSet(name, flag.ContinueOnError), stdout: stdout}
	c.params = stencil.DefaultParams()
	c.flags.StringVar(&c.configFile, "config", "", "the stencil configuration file")
	c.flags.IntVar(&c.localities, "localities", 1, "number of in-process localities, unless a cluster is configured")
	c.flags.BoolVar(&c.results, "results", false, "print generated results")
	c.flags.BoolVar(&c.noHeader, "no-header", false, "do not print out the csv header row")
	c.flags.BoolVar(&c.migrate, "migrate", false, "migrate node 0's first partition to the next node halfway through the run, unless a migration is configured")
	c.flags.IntVar(&c.retries, "retries", 10, "number of times to retry reaching the cluster's agents")
	c.flags.Float64Var(&c.params.K, "k", c.params.K, "heat transfer coefficient")
	c.flags.Float64Var(&c.params.Dt, "dt", c.params.Dt, "timestep unit")
	c.flags.Float64Var(&c.params.Dx, "dx", c.params.Dx, "local x dimension")
	c.flags.IntVar(&c.params.NT, "nt", c.params.NT, "number of time steps")
	c.flags.IntVar(&c.params.NX, "nx", c.params.NX, "local x dimension (of each partition)")
	c.flags.IntVar(&c.params.NP, "np", c.params.NP, "number of partitions")
	c.flags.IntVar(&c.params.ND, "nd", c.params.ND, "number of time steps to allow the dependencies to run ahead")
	c.config.Init(c.flags)
	c.flags.Usage = usage(c.flags)
	return c
}

// set returns the names of the flags set on the command line.
func (c *cmd) set() map[string]bool {
	set := make(map[string]bool)
	c.flags.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// makeConfig layers the command line over the configuration file and
// provisions the result.
func (c *cmd) makeConfig() (config.Config, error) {
	base, err := config.ReadFile(c.configFile)
	if err != nil {
		return nil, err
	}
	c.config.Config = base
	local := fmt.Sprintf("local,%d", c.localities)
	var cfg config.Config = &c.config
	if c.set()["localities"] {
		cfg = &config.StaticKeyConfig{Config: cfg, Key: config.Cluster, Val: local}
	} else {
		cfg = &config.KeyConfig{Config: cfg, Key: config.Cluster, Val: local}
	}
	// The inner Once shares the allocator and logger between the
	// providers; the outer one memoizes what the providers mint.
	cfg, err = config.Make(config.Once(cfg))
	if err != nil {
		return nil, err
	}
	return config.Once(cfg), nil
}

// runParams returns the configured parameters with the command line
// overrides applied, and the migration hook, if any.
func (c *cmd) runParams(cfg config.Config, nodes int) (stencil.Params, *runner.Migration, error) {
	params, err := cfg.Params()
	if err != nil {
		return stencil.Params{}, nil, err
	}
	for name := range c.set() {
		switch name {
		case "k":
			params.K = c.params.K
		case "dt":
			params.Dt = c.params.Dt
		case "dx":
			params.Dx = c.params.Dx
		case "nt":
			params.NT = c.params.NT
		case "nx":
			params.NX = c.params.NX
		case "np":
			params.NP = c.params.NP
		case "nd":
			params.ND = c.params.ND
		}
	}
	migration, err := cfg.Migration()
	if err != nil {
		return stencil.Params{}, nil, err
	}
	if migration == nil && c.migrate {
		migration = &runner.Migration{Step: params.NT / 2, Target: 1 % nodes}
	}
	return params, migration, nil
}

// waitForCluster pings the cluster until every locality answers.
// Configuration errors are not retried.
func waitForCluster(ctx context.Context, cluster *locality.Cluster, retries int, logger *log.Logger) error {
	policy := retry.MaxRetries(retry.Jitter(retry.Backoff(100*time.Millisecond, 5*time.Second, 1.5), 0.25), retries)
	for try := 0; ; try++ {
		err := cluster.Ping(ctx)
		if err == nil || errors.Is(errors.Invalid, err) {
			return err
		}
		logger.Printf("waiting for cluster: %v", err)
		if rerr := retry.Wait(ctx, policy, try); rerr != nil {
			return errors.E("wait", errors.Unavailable, err)
		}
	}
}

func (c *cmd) run(ctx context.Context, args []string) error {
	if err := c.flags.Parse(args); err != nil {
		return err
	}
	if c.flags.NArg() > 0 {
		return errors.E("run", errors.Invalid, fmt.Errorf("unexpected arguments: %v", c.flags.Args()))
	}
	cfg, err := c.makeConfig()
	if err != nil {
		return err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	client, err := cfg.Metrics()
	if err != nil {
		return err
	}
	tracer, err := cfg.Tracer()
	if err != nil {
		return err
	}
	ctx = trace.WithTracer(metrics.WithClient(ctx, client), tracer)

	cluster, err := cfg.Cluster()
	if err != nil {
		return err
	}
	if err := waitForCluster(ctx, cluster, c.retries, logger); err != nil {
		return err
	}
	params, migration, err := c.runParams(cfg, cluster.Size())
	if err != nil {
		return err
	}
	r := &runner.Runner{
		Params:  params,
		Cluster: cluster,
		Migrate: migration,
		Log:     logger,
	}
	res, err := r.Run(ctx)
	if err != nil {
		return err
	}
	if c.results {
		if err := runner.WriteSolution(c.stdout, res); err != nil {
			return err
		}
	}
	return runner.WriteTimings(c.stdout, res, params, !c.noHeader)
}

func main() {
	c := newCmd(os.Args[0], os.Stdout)
	if err := c.run(context.Background(), os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
