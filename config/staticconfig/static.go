// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package staticconfig provides a cluster of node agents at a fixed
// list of addresses. Node i is the agent at the i'th address.
package staticconfig

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/grailbio/stencil/config"
	"github.com/grailbio/stencil/locality"
	"github.com/grailbio/stencil/locality/client"
	"golang.org/x/net/http2"
)

func init() {
	config.Register(config.Cluster, "static", "hosts", "configure a static cluster of node agents at the given comma separated host:port addresses",
		func(cfg config.Config, arg string) (config.Config, error) {
			if arg == "" {
				return nil, errors.New("hosts not provided")
			}
			hosts := strings.Split(arg, ",")
			for _, host := range hosts {
				if host == "" {
					return nil, fmt.Errorf("empty host in %q", arg)
				}
			}
			return &cluster{cfg, hosts}, nil
		},
	)
}

type cluster struct {
	config.Config
	hosts []string
}

func (c *cluster) Cluster() (*locality.Cluster, error) {
	alloc, err := c.Allocator()
	if err != nil {
		return nil, err
	}
	log, err := c.Logger()
	if err != nil {
		return nil, err
	}
	httpClient := HTTPClient()
	localities := make([]locality.Locality, len(c.hosts))
	for i, host := range c.hosts {
		url := fmt.Sprintf("http://%s/", host)
		var err error
		localities[i], err = client.New(i, url, httpClient, alloc, log.Tee(nil, fmt.Sprintf("client %d: ", i)))
		if err != nil {
			return nil, err
		}
	}
	cluster := new(locality.Cluster)
	cluster.SetLocalities(localities)
	return cluster, nil
}

// HTTPClient returns an HTTP client that speaks HTTP/2 over
// cleartext connections (h2c), as served by the node agents.
func HTTPClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
