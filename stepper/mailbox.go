// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stepper

import (
	"fmt"
	"sync"

	"github.com/grailbio/stencil/errors"
	"github.com/grailbio/stencil/partition"
)

type slot struct {
	promise  *partition.Promise
	addr     partition.Addr
	stored   bool
	received bool
}

// Mailbox hands boundary partitions sent by a neighbor to the time
// step that consumes them. Each step is stored at most once and
// received at most once, in either order; a slot is dropped once both
// have happened, so a mailbox holds at most as many slots as there
// are steps in flight.
type Mailbox struct {
	space partition.Space

	mu     sync.Mutex
	slots  map[int]*slot
	closed error
}

// NewMailbox returns an empty mailbox whose references resolve in
// space.
func NewMailbox(space partition.Space) *Mailbox {
	return &Mailbox{space: space, slots: make(map[int]*slot)}
}

func (m *Mailbox) slot(step int) *slot {
	s := m.slots[step]
	if s == nil {
		s = &slot{promise: partition.NewPromise(m.space)}
		m.slots[step] = s
	}
	return s
}

// Store stores the partition at addr for step. Storing a step twice
// is an error, as is storing into a drained mailbox; the caller then
// keeps ownership of the partition.
func (m *Mailbox) Store(step int, addr partition.Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed != nil {
		return errors.E("store", fmt.Sprint(step), errors.Unavailable, errors.New("mailbox is drained"))
	}
	s := m.slot(step)
	if s.stored {
		return errors.E("store", fmt.Sprint(step), errors.Invalid, errors.New("step already stored"))
	}
	s.stored = true
	s.addr = addr
	s.promise.Set(addr, nil)
	if s.received {
		delete(m.slots, step)
	}
	return nil
}

// Receive returns a reference to the partition for step, which is
// resolved once it has been stored. Receives from a drained mailbox
// fail with the error it was drained with.
func (m *Mailbox) Receive(step int) partition.Ref {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed != nil {
		return partition.Failed(m.space, m.closed)
	}
	s := m.slot(step)
	s.received = true
	if s.stored {
		delete(m.slots, step)
	}
	return s.promise.Ref()
}

// Len returns the number of steps that have been stored or received,
// but not both.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

// Drain empties and closes the mailbox. Pending receives fail with
// err, and the addresses of partitions stored but never received are
// returned, so that the caller may free them. Later stores fail with
// errors.Unavailable.
func (m *Mailbox) Drain(err error) []partition.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		err = errors.E("drain", errors.Canceled)
	}
	m.closed = err
	var orphans []partition.Addr
	for step, s := range m.slots {
		if s.stored {
			orphans = append(orphans, s.addr)
		} else {
			s.promise.Set(partition.Addr{}, err)
		}
		delete(m.slots, step)
	}
	return orphans
}
