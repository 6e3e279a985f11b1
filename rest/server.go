// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package rest provides a small framework for serving and accessing
// hierarchical REST resources. Servers are built from a tree of
// Nodes: each request path is walked element by element from the
// root, and the final node handles the call. Errors are transmitted
// as JSON-encoded *errors.Error values, with a status code derived
// from their kind, so that clients recover them with kind intact.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/grailbio/stencil/errors"
	"github.com/grailbio/stencil/log"
)

// Node is a node in a REST resource tree.
type Node interface {
	// Walk returns the child node named by path. Walk returns nil if
	// no such child exists.
	Walk(ctx context.Context, call *Call, path string) Node
	// Do handles a call addressed to this node.
	Do(ctx context.Context, call *Call)
}

// Mux is a Node that maps path elements to child nodes. A call
// addressed to the Mux itself is answered with a 404.
type Mux map[string]Node

// Walk implements Node.
func (m Mux) Walk(ctx context.Context, call *Call, path string) Node {
	return m[path]
}

// Do implements Node.
func (m Mux) Do(ctx context.Context, call *Call) {
	call.NotFound()
}

// WalkFunc is a Node whose children are computed by a function of
// the path element. A call addressed to the WalkFunc itself is
// answered with a 404.
type WalkFunc func(path string) Node

// Walk implements Node.
func (f WalkFunc) Walk(ctx context.Context, call *Call, path string) Node {
	return f(path)
}

// Do implements Node.
func (f WalkFunc) Do(ctx context.Context, call *Call) {
	call.NotFound()
}

// DoFunc is a leaf Node that handles calls with a function.
type DoFunc func(ctx context.Context, call *Call)

// Walk implements Node.
func (f DoFunc) Walk(ctx context.Context, call *Call, path string) Node {
	return nil
}

// Do implements Node.
func (f DoFunc) Do(ctx context.Context, call *Call) {
	f(ctx, call)
}

// Call is a single server-side call. Every call is answered exactly
// once, by Reply, Error, NotFound or a failed Allow or Unmarshal.
type Call struct {
	req     *http.Request
	w       http.ResponseWriter
	log     *log.Logger
	replied bool
	code    int
}

// Method returns the call's HTTP method.
func (c *Call) Method() string {
	return c.req.Method
}

// Header returns the request headers.
func (c *Call) Header() http.Header {
	return c.req.Header
}

// Body returns the request body.
func (c *Call) Body() io.Reader {
	return c.req.Body
}

// Allow tells whether the call's method is one of methods. If not,
// the call is answered with a 405.
func (c *Call) Allow(methods ...string) bool {
	for _, m := range methods {
		if c.req.Method == m {
			return true
		}
	}
	c.w.Header().Set("Allow", strings.Join(methods, ", "))
	c.Error(errors.E(c.req.Method, c.req.URL.Path, errors.NotSupported))
	return false
}

// Unmarshal decodes the JSON request body into v. If decoding fails,
// the call is answered with a 400 and the error is returned.
func (c *Call) Unmarshal(v interface{}) error {
	if err := json.NewDecoder(c.req.Body).Decode(v); err != nil {
		err = errors.E("unmarshal", c.req.URL.Path, errors.Invalid, err)
		c.Error(err)
		return err
	}
	return nil
}

// Reply answers the call with the given status code and a JSON
// encoding of reply, unless reply is nil.
func (c *Call) Reply(code int, reply interface{}) {
	if c.replied {
		c.log.Errorf("%s %s: duplicate reply (%d)", c.req.Method, c.req.URL, code)
		return
	}
	c.replied = true
	c.code = code
	if reply == nil {
		c.w.WriteHeader(code)
		return
	}
	c.w.Header().Set("Content-Type", "application/json")
	c.w.WriteHeader(code)
	if err := json.NewEncoder(c.w).Encode(reply); err != nil {
		c.log.Errorf("%s %s: encode reply: %v", c.req.Method, c.req.URL, err)
	}
}

// Error answers the call with err. The status code is derived from
// the error's kind.
func (c *Call) Error(err error) {
	e := errors.Recover(err)
	c.Reply(e.HTTPStatus(), e)
}

// NotFound answers the call with a 404.
func (c *Call) NotFound() {
	c.Error(errors.E(c.req.Method, c.req.URL.Path, errors.NotExist))
}

// Replied tells whether the call has been answered.
func (c *Call) Replied() bool {
	return c.replied
}

// Code returns the status code of the reply, or 0 if the call has not
// been answered.
func (c *Call) Code() int {
	return c.code
}

type handler struct {
	root Node
	log  *log.Logger
}

// Handler returns an http.Handler that serves the resource tree
// rooted at root. Calls are logged at debug level to log, which may
// be nil.
func Handler(root Node, log *log.Logger) http.Handler {
	return &handler{root, log}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	call := &Call{req: r, w: w, log: h.log}
	node := h.root
	for _, elem := range strings.Split(strings.Trim(r.URL.Path, "/"), "/") {
		if elem == "" {
			continue
		}
		if node = node.Walk(ctx, call, elem); node == nil {
			break
		}
	}
	switch {
	case call.Replied():
	case node == nil:
		call.NotFound()
	default:
		node.Do(ctx, call)
		if !call.Replied() {
			call.Error(errors.E(r.Method, r.URL.Path, errors.Fatal, fmt.Errorf("no reply")))
		}
	}
	h.log.Debugf("%s %s: %d", r.Method, r.URL, call.Code())
}
