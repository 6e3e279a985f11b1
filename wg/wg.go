// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package wg implements a channel-enabled WaitGroup. Steppers use it
// to track the users of a generation of partitions (pending heat
// computations and boundary sends) so that the generation can be
// freed exactly when its last user is done.
package wg

import (
	"context"
	"sync"
)

// A WaitGroup waits for a collection of goroutines to finish. Unlike
// sync.WaitGroup, its completion is observable as a channel, and it
// may be waited on with a context.
// A WaitGroup must not be copied after first use.
type WaitGroup struct {
	mu    sync.Mutex
	n     int
	waitc chan struct{}
}

// Add adds delta, which may be negative, to the WaitGroup counter. If the
// counter becomes zero, all goroutines blocked on C or Wait are released.
// If the counter goes negative, Add panics.
//
// As with sync.WaitGroup, calls with a positive delta that occur when
// the counter is zero must happen before the corresponding wait.
func (w *WaitGroup) Add(delta int) {
	w.mu.Lock()
	w.n += delta
	if w.n < 0 {
		w.mu.Unlock()
		panic("wg: negative count")
	}
	var c chan struct{}
	if w.n == 0 {
		c, w.waitc = w.waitc, nil
	}
	w.mu.Unlock()
	if c != nil {
		close(c)
	}
}

// Done decrements the WaitGroup counter.
func (w *WaitGroup) Done() {
	w.Add(-1)
}

// C returns a channel that is closed when the waitgroup count is 0.
func (w *WaitGroup) C() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.n == 0 {
		c := make(chan struct{})
		close(c)
		return c
	}
	if w.waitc == nil {
		w.waitc = make(chan struct{})
	}
	return w.waitc
}

// Wait blocks until the count reaches zero or the context is done,
// in which case the context's error is returned.
func (w *WaitGroup) Wait(ctx context.Context) error {
	select {
	case <-w.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// N returns the current count.
func (w *WaitGroup) N() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}
