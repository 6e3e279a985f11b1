// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stepper

import (
	"context"
	"testing"
	"time"
)

func TestWindow(t *testing.T) {
	ctx := context.Background()
	w := NewWindow(2)
	for step := 0; step <= 2; step++ {
		if err := w.Wait(ctx, step); err != nil {
			t.Fatal(err)
		}
	}
	errc := make(chan error, 1)
	go func() {
		errc <- w.Wait(ctx, 5)
	}()
	w.Signal(2)
	select {
	case err := <-errc:
		t.Fatalf("wait returned early: %v", err)
	case <-time.After(10 * time.Millisecond):
	}
	w.Signal(3)
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	w.Signal(1)
	if got, want := w.Floor(), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestWindowCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := NewWindow(1).Wait(ctx, 2); err != context.DeadlineExceeded {
		t.Errorf("got %v, want %v", err, context.DeadlineExceeded)
	}
}
