// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package eventqueue implements the bounded FIFO of target events that
// sits between backend event producers and the debugger core's
// dispatch loop. It is the one piece of state shared across threads
// and is guarded by a single mutex. The exception policy map is not
// shared: dbgcore.Core holds it as a plain map, read and written only
// on the dispatch goroutine, with no lock.
package eventqueue

import (
	"context"
	"sync"

	"github.com/rdagent/rdagent/cpu"
)

// DefaultCapacity is the queue bound the spec calls "approximately
// 10000 entries".
const DefaultCapacity = 10000

// Queue is a bounded FIFO of cpu.DebugEvent. When full, Push blocks
// (spins on a condition variable) until space is available rather
// than dropping the event: dropping would desynchronize the front
// end's model of the target, which the spec calls out as the reason
// to prefer backpressure.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	buf      []cpu.DebugEvent
	cap      int
	closed   bool
}

// New creates a queue with the given capacity. A capacity of 0 uses
// DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &Queue{cap: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push enqueues ev, blocking while the queue is full.
func (q *Queue) Push(ev cpu.DebugEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) >= q.cap && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return
	}
	q.buf = append(q.buf, ev)
	q.notEmpty.Signal()
}

// Pop removes and returns the oldest event, blocking until one is
// available or ctx is done. ok is false if ctx was canceled first or
// the queue was closed with nothing left to drain.
func (q *Queue) Pop(ctx context.Context) (ev cpu.DebugEvent, ok bool) {
	// sync.Cond has no channel-based wait, so a canceled context is
	// delivered by a watcher goroutine that wakes every waiter; the
	// loop below then notices ctx.Err() and gives up.
	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.notEmpty.Broadcast()
			q.mu.Unlock()
		case <-stopWatch:
		}
	}()
	defer close(stopWatch)

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) == 0 && !q.closed {
		select {
		case <-ctx.Done():
			return cpu.DebugEvent{}, false
		default:
		}
		q.notEmpty.Wait()
	}
	if len(q.buf) == 0 {
		return cpu.DebugEvent{}, false
	}
	ev = q.buf[0]
	q.buf = q.buf[1:]
	q.notFull.Signal()
	return ev, true
}

// TryPop removes and returns the oldest event without blocking. ok is
// false if the queue is currently empty.
func (q *Queue) TryPop() (ev cpu.DebugEvent, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return cpu.DebugEvent{}, false
	}
	ev = q.buf[0]
	q.buf = q.buf[1:]
	q.notFull.Signal()
	return ev, true
}

// Len returns the number of events currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Close unblocks every blocked Push/Pop. Further Push calls are
// no-ops; Pop continues to drain whatever remains, then returns ok
// == false.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}
