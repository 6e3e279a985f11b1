// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/grailbio/stencil/errors"
	"github.com/grailbio/stencil/log"
	"golang.org/x/net/context/ctxhttp"
)

// Client is a REST client.
type Client struct {
	url    *url.URL
	client *http.Client
	log    *log.Logger
}

// NewClient returns a new REST client given an HTTP client and root
// URL. A nil HTTP client uses http.DefaultClient.
func NewClient(client *http.Client, u *url.URL, log *log.Logger) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{client: client, url: u, log: log}
}

// Walk constructs a new client based on client c with a root URL based
// on resolving the URL's relative reference vis-a-vis the formatted string.
func (c *Client) Walk(format string, args ...interface{}) (*Client, error) {
	u, err := url.Parse(fmt.Sprintf(format, args...))
	if err != nil {
		return nil, err
	}
	return &Client{
		url:    c.url.ResolveReference(u),
		client: c.client,
		log:    c.log,
	}, nil
}

// URL returns the client's root URL.
func (c *Client) URL() *url.URL { return c.url }

// Call constructs a ClientCall with the given method and path
// (relative to the client's root URL). Path elements are escaped
// individually, so arguments must not contain slashes.
func (c *Client) Call(method, format string, args ...interface{}) *ClientCall {
	escaped := make([]interface{}, len(args))
	for i, arg := range args {
		if s, ok := arg.(string); ok {
			arg = url.PathEscape(s)
		}
		escaped[i] = arg
	}
	return &ClientCall{Client: c, Header: http.Header{}, method: method, path: fmt.Sprintf(format, escaped...)}
}

// Invoke performs a JSON call to path, which must already be
// escaped: req (if non-nil) is marshaled as the
// request body and, if the reply has status code ok, it is unmarshaled
// into reply (if non-nil). Replies with other status codes are decoded
// as *errors.Error and returned, annotated with op.
func (c *Client) Invoke(ctx context.Context, op string, ok int, method, path string, req, reply interface{}) error {
	call := &ClientCall{Client: c, Header: http.Header{}, method: method, path: path}
	defer call.Close()
	code, err := call.DoJSON(ctx, req)
	if err != nil {
		return errors.E(op, err)
	}
	if code != ok {
		return errors.E(op, call.Error())
	}
	if reply == nil {
		return nil
	}
	if err := call.Unmarshal(reply); err != nil {
		return errors.E(op, errors.Net, err)
	}
	return nil
}

// ClientCall represents a single call. It handles the entire call lifecycle.
// ClientCalls must be closed in order to relinquish resources. Typically,
// client code will invoke Close with a defer statement:
//
//	call := client.Call(...)
//	defer call.Close()
//
// ClientCall is also an io.Reader for the reply body.
type ClientCall struct {
	*Client
	Header http.Header
	method string
	path   string
	resp   *http.Response
	err    error
}

// Err returns the call's error, if any.
func (c *ClientCall) Err() error {
	return c.err
}

// Error unmarshals an error from the call's reply. Replies whose body
// is not an encoded error are summarized by their status.
func (c *ClientCall) Error() *errors.Error {
	e := new(errors.Error)
	if err := c.Unmarshal(e); err != nil {
		if c.resp == nil {
			return errors.Recover(err)
		}
		return errors.Recover(errors.E(errors.Net, fmt.Errorf("%s %s: %s", c.method, c.path, c.resp.Status)))
	}
	return e
}

// Do performs a call with the given context and body. It returns the
// HTTP status code for the reply, or a non-nil error if one occurred.
// Transport failures are reported as errors.Net errors.
func (c *ClientCall) Do(ctx context.Context, body io.Reader) (int, error) {
	var r *http.Request
	r, c.err = http.NewRequest(c.method, "", body)
	if c.err != nil {
		return 0, c.err
	}
	u, err := url.Parse(c.path)
	if err != nil {
		c.err = err
		return 0, err
	}
	r.URL = c.url.ResolveReference(u)
	r.Header = c.Header
	if body != nil && r.Header.Get("Content-Type") == "" {
		r.Header.Set("Content-Type", "application/json")
	}
	if c.log.At(log.DebugLevel) {
		b, err := httputil.DumpRequestOut(r, true)
		if err == nil {
			c.log.Debugf("request %s", b)
		}
	}
	c.resp, err = ctxhttp.Do(ctx, c.client, r)
	switch err {
	case nil:
		c.err = nil
	case context.Canceled, context.DeadlineExceeded:
		c.err = errors.Recover(err)
	default:
		c.err = errors.E(errors.Net, err)
	}
	if c.log.At(log.DebugLevel) {
		if c.resp != nil {
			b, err := httputil.DumpResponse(c.resp, true)
			if err == nil {
				c.log.Debugf("response %s", b)
			}
		} else if c.err != nil {
			c.log.Debugf("response error %s", c.err)
		}
	}
	if c.resp == nil {
		return 0, c.err
	}
	return c.resp.StatusCode, c.err
}

// DoJSON is like Do, except the request req is marshaled using Go's
// JSON encoder.
func (c *ClientCall) DoJSON(ctx context.Context, req interface{}) (int, error) {
	var body io.Reader
	if req != nil {
		b := new(bytes.Buffer)
		c.err = json.NewEncoder(b).Encode(req)
		if c.err != nil {
			return 0, c.err
		}
		body = b
	}
	return c.Do(ctx, body)
}

// Unmarshal unmarshals the call's reply using Go's JSON decoder.
func (c *ClientCall) Unmarshal(reply interface{}) error {
	if c.err != nil {
		return c.err
	}
	if c.resp == nil {
		return errors.E("unmarshal", errors.Invalid, errors.New("call has no reply"))
	}
	if reply != nil {
		c.err = json.NewDecoder(c.resp.Body).Decode(reply)
	}
	return c.err
}

// Read implements io.Reader for the call's reply body.
func (c *ClientCall) Read(p []byte) (n int, err error) {
	return c.resp.Body.Read(p)
}

// Close relinquishes resources associated with the call.
func (c *ClientCall) Close() error {
	if c.resp != nil {
		return c.resp.Body.Close()
	}
	return nil
}
