// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package backend defines the interface a concrete debugger backend
// (native OS debugger API, GDB-remote stub, instrumentation client)
// must implement. It is kept separate from package cpu, which holds
// only the value types, so that a per-CPU table package can depend on
// cpu without pulling in this behavioral contract — mirroring the
// teacher's own split between arch (value types) and program
// (behavioral interface).
package backend

import (
	"context"

	"github.com/rdagent/rdagent/cpu"
	"github.com/rdagent/rdagent/eventqueue"
)

// Backend is the full set of operations the debugger core dispatches
// against. A concrete backend owns exactly one attached target at a
// time.
type Backend interface {
	Attach(ctx context.Context, pid uint64) error
	Start(ctx context.Context, path string, argv []string) error
	Detach(ctx context.Context) error
	Terminate(ctx context.Context) error

	EnumerateThreads(ctx context.Context) ([]cpu.Thread, error)
	ActiveThread() uint64
	SetActiveThread(ctx context.Context, tid uint64) error

	ReadRegisters(ctx context.Context, tid uint64) ([]cpu.RegisterValue, error)
	WriteRegister(ctx context.Context, tid uint64, name string, value uint64) error

	ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error)
	WriteMemory(ctx context.Context, addr uint64, data []byte) error
	EnumerateValidMemory(ctx context.Context) ([]MemoryRange, error)

	SetBreakpoint(ctx context.Context, addr uint64, kind cpu.BreakpointKind) error
	RemoveBreakpoint(ctx context.Context, addr uint64, kind cpu.BreakpointKind) error

	SingleStep(ctx context.Context, tid uint64) error
	ResumeThread(ctx context.Context, tid uint64) error
	ResumeProcess(ctx context.Context) error
	SuspendThread(ctx context.Context, tid uint64) error
	Halt(ctx context.Context) error

	RegisterLayout() []cpu.RegisterDescriptor
	InstructionPointerIndex() int
	AddressSizeBits() int

	Options() cpu.DebuggerOptions

	// CorrectBreakpointAddress adjusts a trapped PC back to the
	// address the breakpoint was installed at; identity by default,
	// addr-1 on architectures (x86) where the trap delivers PC+1.
	CorrectBreakpointAddress(addr uint64) uint64

	// Events returns the queue this backend pushes DebugEvents into.
	// The core drains it between commands.
	Events() *eventqueue.Queue
}

// MemoryRange is one valid memory region, as returned by
// EnumerateValidMemory.
type MemoryRange struct {
	Start uint64
	End   uint64
}

// HasRegularBreakpointMessage reports whether bk delivers a distinct
// "breakpoint" stop-reply rather than a generic "stopped" one. Most
// backends don't distinguish; only gdbremote's per-CPU table can.
type HasRegularBreakpointMessage interface {
	HasRegularBreakpointMessage() bool
}
