// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eventqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rdagent/rdagent/cpu"
)

func TestPushPopPreservesOrder(t *testing.T) {
	q := New(4)
	for i := 0; i < 4; i++ {
		q.Push(cpu.DebugEvent{Kind: cpu.EventThreadCreated, TID: uint64(i)})
	}
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		ev, ok := q.Pop(ctx)
		require.True(t, ok)
		require.Equal(t, uint64(i), ev.TID)
	}
}

func TestPopAfterFullQueueSucceeds(t *testing.T) {
	q := New(1)
	q.Push(cpu.DebugEvent{TID: 1})
	done := make(chan struct{})
	go func() {
		q.Push(cpu.DebugEvent{TID: 2}) // blocks until the queue drains below capacity
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	ev, ok := q.Pop(context.Background())
	require.True(t, ok)
	require.Equal(t, uint64(1), ev.TID)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked Push never unblocked after Pop freed capacity")
	}
	ev, ok = q.Pop(context.Background())
	require.True(t, ok)
	require.Equal(t, uint64(2), ev.TID)
}

func TestPopReturnsOnContextCancel(t *testing.T) {
	q := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := q.Pop(ctx)
	require.False(t, ok)
}
