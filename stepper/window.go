// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stepper

import (
	"context"
	"sync"

	"github.com/grailbio/base/sync/ctxsync"
)

// Window is a sliding semaphore: it admits step t once t is at most
// depth steps past the latest step signalled as complete.
type Window struct {
	depth int

	mu    sync.Mutex
	cond  *ctxsync.Cond
	floor int
}

// NewWindow returns a window of the given depth with floor 0.
func NewWindow(depth int) *Window {
	w := &Window{depth: depth}
	w.cond = ctxsync.NewCond(&w.mu)
	return w
}

// Signal raises the window's floor to step. The floor never
// decreases.
func (w *Window) Signal(step int) {
	w.mu.Lock()
	if step > w.floor {
		w.floor = step
		w.cond.Broadcast()
	}
	w.mu.Unlock()
}

// Wait blocks while step is more than depth steps past the floor, or
// until ctx is done.
func (w *Window) Wait(ctx context.Context, step int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var err error
	for step-w.depth > w.floor && err == nil {
		err = w.cond.Wait(ctx)
	}
	return err
}

// Floor returns the latest signalled step.
func (w *Window) Floor() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.floor
}
