// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package instrbackend

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rdagent/rdagent/cpu"
	"github.com/rdagent/rdagent/eventqueue"
	"github.com/rdagent/rdagent/wire"
)

// fakeRunner is an in-memory Runner whose handler function computes a
// scripted reply for each inbound request, letting tests drive the
// instrumentation protocol without an external binary.
type fakeRunner struct {
	reqR *io.PipeReader
	reqW *io.PipeWriter
	repR *io.PipeReader
	repW *io.PipeWriter

	handle func(req wire.Packet) wire.Packet
}

func newFakeRunner(handle func(wire.Packet) wire.Packet) *fakeRunner {
	reqR, reqW := io.Pipe()
	repR, repW := io.Pipe()
	return &fakeRunner{reqR: reqR, reqW: reqW, repR: repR, repW: repW, handle: handle}
}

func (f *fakeRunner) Start() error {
	go func() {
		for {
			req, err := wire.Decode(f.reqR)
			if err != nil {
				return
			}
			reply := f.handle(req)
			reply.ID = req.ID
			if err := wire.Encode(f.repW, reply); err != nil {
				return
			}
		}
	}()
	return nil
}

func (f *fakeRunner) Stdin() io.Writer  { return f.reqW }
func (f *fakeRunner) Stdout() io.Reader { return f.repR }
func (f *fakeRunner) Wait() error       { return nil }
func (f *fakeRunner) Kill() error       { return nil }

func TestStartPingsRunnerAndEmitsProcessStarted(t *testing.T) {
	runner := newFakeRunner(func(req wire.Packet) wire.Packet {
		return wire.Packet{Command: req.Command}
	})
	q := eventqueue.New(4)
	b := New(runner, q)

	require.NoError(t, b.Start(context.Background(), "/bin/fake", nil))

	ev, ok := q.TryPop()
	require.True(t, ok)
	require.Equal(t, cpu.EventProcessStarted, ev.Kind)
}

func TestResumeProcessPollsUntilEventArrives(t *testing.T) {
	polls := 0
	runner := newFakeRunner(func(req wire.Packet) wire.Packet {
		switch req.Command {
		case cmdResumeFromBreakpoint:
			return wire.Packet{Command: req.Command}
		case cmdGetDebugEvents:
			polls++
			if polls < 3 {
				return wire.Packet{Command: req.Command}
			}
			return wire.Packet{
				Command: req.Command,
				Args: []wire.Arg{
					wire.NewIntegerArg(uint32(cpu.EventBreakpointHit)),
					wire.NewAddressArg(0x401000),
					wire.NewLongArg(7),
				},
			}
		default:
			return wire.Packet{Command: req.Command}
		}
	})
	q := eventqueue.New(4)
	b := New(runner, q)
	require.NoError(t, b.runner.Start())

	require.NoError(t, b.ResumeProcess(context.Background()))
	require.Equal(t, 3, polls)

	ev, ok := q.TryPop()
	require.True(t, ok)
	require.Equal(t, cpu.EventBreakpointHit, ev.Kind)
	require.Equal(t, uint64(0x401000), ev.Address)
	require.Equal(t, uint64(7), ev.TID)
}

func TestAttachIsUnsupported(t *testing.T) {
	b := New(newFakeRunner(nil), eventqueue.New(1))
	err := b.Attach(context.Background(), 1)
	require.Error(t, err)
	cerr, ok := err.(*cpu.Error)
	require.True(t, ok)
	require.Equal(t, cpu.ErrUnsupported, cerr.Code)
}

func TestReadRegistersDecodesNameValuePairs(t *testing.T) {
	runner := newFakeRunner(func(req wire.Packet) wire.Packet {
		return wire.Packet{
			Command: req.Command,
			Args: []wire.Arg{
				wire.NewStringArg("PC"), wire.NewLongArg(0x1000),
				wire.NewStringArg("SP"), wire.NewLongArg(0x7ffe0000),
			},
		}
	})
	b := New(runner, eventqueue.New(1))
	require.NoError(t, b.runner.Start())

	regs, err := b.ReadRegisters(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, regs, 2)
	require.Equal(t, "PC", regs[0].Name)
	require.Equal(t, uint64(0x1000), regs[0].HexValue)
}
