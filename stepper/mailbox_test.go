// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stepper

import (
	"context"
	"testing"
	"time"

	"github.com/grailbio/stencil/errors"
	"github.com/grailbio/stencil/partition"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestMailboxStoreFirst(t *testing.T) {
	m := NewMailbox(nil)
	want := partition.Addr{Node: 1, ID: "a"}
	assert.NoError(t, m.Store(3, want))
	expect.EQ(t, m.Len(), 1)
	got, err := m.Receive(3).Addr(context.Background())
	assert.NoError(t, err)
	expect.EQ(t, got, want)
	expect.EQ(t, m.Len(), 0)
}

func TestMailboxReceiveFirst(t *testing.T) {
	m := NewMailbox(nil)
	ref := m.Receive(0)
	select {
	case <-ref.Done():
		t.Fatal("receive resolved before store")
	case <-time.After(10 * time.Millisecond):
	}
	want := partition.Addr{Node: 0, ID: "b"}
	go func() {
		_ = m.Store(0, want)
	}()
	got, err := ref.Addr(context.Background())
	assert.NoError(t, err)
	expect.EQ(t, got, want)
}

func TestMailboxStoreTwice(t *testing.T) {
	m := NewMailbox(nil)
	assert.NoError(t, m.Store(1, partition.Addr{ID: "x"}))
	if err := m.Store(1, partition.Addr{ID: "y"}); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected Invalid, got %v", err)
	}
	got, err := m.Receive(1).Addr(context.Background())
	assert.NoError(t, err)
	expect.EQ(t, got.ID, "x")
}

func TestMailboxDrain(t *testing.T) {
	m := NewMailbox(nil)
	assert.NoError(t, m.Store(2, partition.Addr{ID: "orphan"}))
	pending := m.Receive(5)
	orphans := m.Drain(errors.E(errors.Canceled))
	expect.EQ(t, orphans, []partition.Addr{{ID: "orphan"}})
	expect.EQ(t, m.Len(), 0)
	_, err := pending.Addr(context.Background())
	if !errors.Is(errors.Canceled, err) {
		t.Errorf("expected Canceled, got %v", err)
	}
}

func TestMailboxStoreAfterDrain(t *testing.T) {
	m := NewMailbox(nil)
	expect.EQ(t, len(m.Drain(errors.E(errors.Net))), 0)
	if err := m.Store(4, partition.Addr{ID: "late"}); !errors.Is(errors.Unavailable, err) {
		t.Errorf("expected Unavailable, got %v", err)
	}
	expect.EQ(t, m.Len(), 0)
	_, err := m.Receive(4).Addr(context.Background())
	if !errors.Is(errors.Net, err) {
		t.Errorf("expected Net, got %v", err)
	}
}
