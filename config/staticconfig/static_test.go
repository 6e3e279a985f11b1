// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package staticconfig

import (
	"context"
	"fmt"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/grailbio/stencil/config"
	"github.com/grailbio/stencil/locality"
	"github.com/grailbio/stencil/locality/server"
	"github.com/grailbio/stencil/rest"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func TestStaticCluster(t *testing.T) {
	var hosts []string
	for i := 0; i < 2; i++ {
		l := locality.NewLocal(i, nil, nil, nil, nil)
		srv := httptest.NewServer(h2c.NewHandler(rest.Handler(server.NewNode(l, nil), nil), &http2.Server{}))
		defer srv.Close()
		u, err := url.Parse(srv.URL)
		if err != nil {
			t.Fatal(err)
		}
		hosts = append(hosts, u.Host)
	}
	cfg, err := config.Parse([]byte(fmt.Sprintf("cluster: static,%s,%s\nlogger: off\n", hosts[0], hosts[1])))
	if err != nil {
		t.Fatal(err)
	}
	cluster, err := cfg.Cluster()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := cluster.Size(), 2; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	ctx := context.Background()
	if err := cluster.Ping(ctx); err != nil {
		t.Fatal(err)
	}
	addr, err := cluster.Create(ctx, 1, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := addr.Node, 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if err := cluster.Free(ctx, addr); err != nil {
		t.Fatal(err)
	}
}

func TestNoHosts(t *testing.T) {
	for _, doc := range []string{"cluster: static", "cluster: static,a:1,,b:2"} {
		if _, err := config.Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", doc)
		}
	}
}
