// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package stencilet implements the stencil node agent: it serves a
// locality, running steppers on behalf of a coordinator, through the
// REST API of package locality/server.
package stencilet

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/grailbio/stencil"
	"github.com/grailbio/stencil/config"
	"github.com/grailbio/stencil/errors"
	"github.com/grailbio/stencil/locality"
	"github.com/grailbio/stencil/locality/server"
	"github.com/grailbio/stencil/log"
	"github.com/grailbio/stencil/metrics"
	"github.com/grailbio/stencil/rest"
	"github.com/grailbio/stencil/stepper"
	"github.com/grailbio/stencil/trace"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"gopkg.in/yaml.v2"
)

// maxConcurrentStreams is the number of concurrent http/2 streams we
// support. Each running stepper holds one stream for its work call
// and issues one per boundary delivery.
const maxConcurrentStreams = 20000

// A Server is a stencil node agent, exposing a local locality over
// an HTTP/2 cleartext server.
type Server struct {
	// Config is the server's configuration. Its cluster must list
	// every node agent, including this one, in node order.
	Config config.Config

	// Addr is the address on which to listen.
	Addr string
	// Node is the index of this agent in the cluster.
	Node int
	// HTTPDebug determines whether HTTP debug logging is turned on.
	HTTPDebug bool

	configFlag string

	// Local is the locality served by this agent. It is set by
	// Handler.
	Local *locality.Local
}

// AddFlags adds flags configuring the agent to the provided FlagSet.
func (s *Server) AddFlags(flags *flag.FlagSet) {
	flags.StringVar(&s.configFlag, "config", "", "the stencil configuration file")
	flags.StringVar(&s.Addr, "addr", ":9000", "HTTP server address")
	flags.IntVar(&s.Node, "node", 0, "index of this agent in the cluster")
	flags.BoolVar(&s.HTTPDebug, "httpdebug", false, "turn on HTTP debug logging")
}

// Handler provisions the server's configuration and returns an
// HTTP handler that serves this node's locality under /v1/, its
// configuration at /v1/config, and, when metrics are exported to
// Prometheus, the metrics at /metrics.
func (s *Server) Handler() (http.Handler, error) {
	if s.Config == nil {
		base, err := config.ReadFile(s.configFlag)
		if err != nil {
			return nil, err
		}
		s.Config = base
	} else if s.configFlag != "" {
		base, err := config.ReadFile(s.configFlag)
		if err != nil {
			return nil, err
		}
		if err := base.Marshal(s.Config.Keys()); err != nil {
			return nil, err
		}
	}
	// The inner Once shares the allocator and logger between the
	// providers; the outer one memoizes what the providers mint.
	cfg, err := config.Make(config.Once(s.Config))
	if err != nil {
		return nil, err
	}
	cfg = config.Once(cfg)
	s.Config = cfg

	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	alloc, err := cfg.Allocator()
	if err != nil {
		return nil, err
	}
	cluster, err := cfg.Cluster()
	if err != nil {
		return nil, err
	}
	if s.Node < 0 || s.Node >= cluster.Size() {
		return nil, errors.E("stencilet", errors.Invalid,
			fmt.Errorf("node %d outside cluster of %d", s.Node, cluster.Size()))
	}
	s.Local = locality.NewLocal(s.Node, cluster, alloc,
		logger.Tee(nil, fmt.Sprintf("node %d: ", s.Node)), stepper.Spawn)
	localities := append([]locality.Locality(nil), cluster.Localities()...)
	localities[s.Node] = s.Local
	cluster.SetLocalities(localities)

	client, err := cfg.Metrics()
	if err != nil {
		return nil, err
	}
	tracer, err := cfg.Tracer()
	if err != nil {
		return nil, err
	}

	var httpLog *log.Logger
	if s.HTTPDebug {
		httpLog = logger.Tee(nil, "http: ")
		if httpLog != nil {
			httpLog.Level = log.DebugLevel
		}
	}
	mux := http.NewServeMux()
	mux.Handle("/", withContext(rest.Handler(server.NewNode(s.Local, alloc), httpLog), client, tracer))
	cfgNode, err := newConfigNode(&config.KeyConfig{Config: cfg, Key: "version", Val: stencil.Version})
	if err != nil {
		return nil, fmt.Errorf("read config: %v", err)
	}
	mux.Handle("/v1/config", rest.Handler(rest.Mux{"v1": rest.Mux{"config": cfgNode}}, httpLog))
	if h, ok := client.(interface{ Handler() http.Handler }); ok {
		mux.Handle("/metrics", h.Handler())
	}
	return mux, nil
}

// ListenAndServe serves the agent on the configured address.
func (s *Server) ListenAndServe() error {
	h, err := s.Handler()
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr: s.Addr,
		Handler: h2c.NewHandler(h, &http2.Server{
			MaxConcurrentStreams: maxConcurrentStreams,
		}),
	}
	s.Local.Log.Printf("serving on %s", s.Addr)
	return server.ListenAndServe()
}

// withContext attaches the metrics client and tracer to the context
// of every request served by h.
func withContext(h http.Handler, client metrics.Client, tracer trace.Tracer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := trace.WithTracer(metrics.WithClient(r.Context(), client), tracer)
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IgnoreSigpipe consumes (and ignores) SIGPIPE signals. As of Go
// 1.6, these are generated only for stdout and stderr.
//
// This is useful where an agent's standard output is closed while
// running, as can happen when journald restarts on systemd managed
// systems.
func IgnoreSigpipe() {
	c := make(chan os.Signal, 1024)
	signal.Notify(c, os.Signal(syscall.SIGPIPE))
	for {
		<-c
	}
}

func newConfigNode(cfg config.Config) (rest.DoFunc, error) {
	keys := make(config.Keys)
	if err := cfg.Marshal(keys); err != nil {
		return nil, fmt.Errorf("marshal config: %v", err)
	}
	b, err := yaml.Marshal(keys)
	if err != nil {
		return nil, fmt.Errorf("serialize keys: %v", err)
	}
	return func(ctx context.Context, call *rest.Call) {
		if !call.Allow("GET") {
			return
		}
		call.Reply(http.StatusOK, string(b))
	}, nil
}
