// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Stencilet is the agent process that is run on nodes in a stencil
// cluster. Stencilet serves a locality through the standard REST API;
// a coordinator (cmd/stencil) spawns steppers on it and drives their
// time loops.
package main

import (
	_ "expvar"
	"flag"
	"fmt"
	_ "net/http/pprof"
	"os"

	_ "github.com/grailbio/stencil/config/all"
	"github.com/grailbio/stencil/log"
	"github.com/grailbio/stencil/stencilet"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: stencilet [flags]

Stencilet is the node agent for the distributed stencil. It exposes a
locality through a REST API served over HTTP/2 cleartext connections.
Every agent in a cluster is started with the same cluster
configuration, listing all agents in node order, and with its own
index in that list:

	stencilet -config cluster.yaml -node 1 -addr :9001

`)
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	// Make sure that we always shut down with a non-zero exit code.
	defer os.Exit(1)
	var server stencilet.Server
	server.AddFlags(flag.CommandLine)
	flag.Usage = usage
	flag.Parse()
	go stencilet.IgnoreSigpipe()
	log.Fatal(server.ListenAndServe())
}
