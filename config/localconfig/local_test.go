// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package localconfig

import (
	"context"
	"testing"

	"github.com/grailbio/stencil/config"
	"github.com/grailbio/stencil/runner"
)

func TestLocalCluster(t *testing.T) {
	cfg, err := config.Parse([]byte(`
cluster: local,3
logger: off
stencil:
  np: 6
  nx: 2
  nt: 4
  nd: 2
`))
	if err != nil {
		t.Fatal(err)
	}
	cluster, err := cfg.Cluster()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := cluster.Size(), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	params, err := cfg.Params()
	if err != nil {
		t.Fatal(err)
	}
	r := &runner.Runner{Params: params, Cluster: cluster}
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(res.Solution), 12; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestInvalidCount(t *testing.T) {
	for _, doc := range []string{"cluster: local,0", "cluster: local,x"} {
		if _, err := config.Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", doc)
		}
	}
}
