// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

// Package nativebackend implements the native-OS-debugger backend:
// process attach/create, thread enumeration, memory access and
// breakpoint installation via ptrace. It is grounded on the teacher's
// program/server/ptrace.go (a dedicated, runtime.LockOSThread'd
// goroutine that every ptrace syscall is funneled through over an
// unbuffered closure channel, because all ptrace calls for a given
// tracee must come from the thread that attached to it) and
// internal/core/process.go's virtual-memory-mapping model, generalized
// from a single ptrace-based debugger tied directly to proxyrpc types
// into an implementation of the spec's backend.Backend interface.
package nativebackend

import (
	"context"
	"os"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/rdagent/rdagent/backend"
	"github.com/rdagent/rdagent/cpu"
	"github.com/rdagent/rdagent/eventqueue"
)

// Backend implements backend.Backend over Linux ptrace(2).
type Backend struct {
	fc chan func() error
	ec chan error

	events *eventqueue.Queue

	mu        sync.Mutex
	pid       int
	proc      *os.Process
	activeTID uint64
	threads   map[uint64]cpu.ThreadState
	trapOrig  map[uint64][]byte
}

var _ backend.Backend = (*Backend)(nil)

// New constructs a Backend and starts its dedicated ptrace thread.
// Per ptrace(2), every ptrace call for a tracee must issue from the
// thread that attached to (or forked) it, so all such calls are
// funneled through fc/ec exactly as the teacher's ptraceRun does.
func New(events *eventqueue.Queue) *Backend {
	b := &Backend{
		fc:       make(chan func() error),
		ec:       make(chan error),
		events:   events,
		threads:  make(map[uint64]cpu.ThreadState),
		trapOrig: make(map[uint64][]byte),
	}
	go b.run()
	return b
}

func (b *Backend) run() {
	runtimeLockOSThread()
	for f := range b.fc {
		b.ec <- f()
	}
}

// do funnels f onto the dedicated ptrace thread and waits for its
// result.
func (b *Backend) do(f func() error) error {
	b.fc <- f
	return <-b.ec
}

func (b *Backend) Start(ctx context.Context, path string, argv []string) error {
	full := append([]string{path}, argv...)
	var proc *os.Process
	err := b.do(func() error {
		p, err := os.StartProcess(path, full, &os.ProcAttr{
			Files: []*os.File{nil, os.Stderr, os.Stderr},
			Sys: &syscall.SysProcAttr{
				Ptrace:    true,
				Pdeathsig: syscall.SIGKILL,
			},
		})
		if err != nil {
			return err
		}
		proc = p
		return nil
	})
	if err != nil {
		return cpu.NewError(cpu.ErrCouldntOpenTarget, err.Error())
	}
	b.mu.Lock()
	b.proc = proc
	b.pid = proc.Pid
	b.activeTID = uint64(proc.Pid)
	b.threads[uint64(proc.Pid)] = cpu.ThreadSuspended
	b.mu.Unlock()

	// The tracee raises SIGTRAP on its own execve under PTRACE_TRACEME
	// semantics; reap that first stop before the caller issues its
	// first resume.
	var ws unix.WaitStatus
	if err := b.do(func() error {
		_, err := unix.Wait4(proc.Pid, &ws, 0, nil)
		return err
	}); err != nil {
		return cpu.NewError(cpu.ErrCouldntOpenTarget, err.Error())
	}
	b.events.Push(cpu.DebugEvent{Kind: cpu.EventProcessStarted, TID: uint64(proc.Pid)})
	return nil
}

func (b *Backend) Attach(ctx context.Context, pid uint64) error {
	err := b.do(func() error { return unix.PtraceAttach(int(pid)) })
	if err != nil {
		return cpu.NewError(cpu.ErrCouldntAttach, err.Error())
	}
	var ws unix.WaitStatus
	if err := b.do(func() error {
		_, err := unix.Wait4(int(pid), &ws, 0, nil)
		return err
	}); err != nil {
		return cpu.NewError(cpu.ErrCouldntAttach, err.Error())
	}
	b.mu.Lock()
	b.pid = int(pid)
	b.activeTID = pid
	b.threads[pid] = cpu.ThreadSuspended
	b.mu.Unlock()
	b.events.Push(cpu.DebugEvent{Kind: cpu.EventThreadCreated, TID: pid})
	return nil
}

func (b *Backend) Detach(ctx context.Context) error {
	if err := b.do(func() error { return unix.PtraceDetach(b.pid) }); err != nil {
		return cpu.NewError(cpu.ErrCouldntDetach, err.Error())
	}
	return nil
}

func (b *Backend) Terminate(ctx context.Context) error {
	if err := b.do(func() error { return unix.Kill(b.pid, unix.SIGKILL) }); err != nil {
		return cpu.NewError(cpu.ErrCouldntTerminate, err.Error())
	}
	return nil
}

func (b *Backend) EnumerateThreads(ctx context.Context) ([]cpu.Thread, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]cpu.Thread, 0, len(b.threads))
	for tid, st := range b.threads {
		out = append(out, cpu.Thread{TID: tid, State: st})
	}
	return out, nil
}

func (b *Backend) ActiveThread() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeTID
}

func (b *Backend) SetActiveThread(ctx context.Context, tid uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.threads[tid]; !ok {
		return cpu.NewError(cpu.ErrGenericError, "unknown tid")
	}
	b.activeTID = tid
	return nil
}

func (b *Backend) ReadRegisters(ctx context.Context, tid uint64) ([]cpu.RegisterValue, error) {
	var regs amd64Regs
	err := b.do(func() error { return ptraceGetRegs(int(tid), &regs) })
	if err != nil {
		return nil, cpu.NewError(cpu.ErrCouldntReadRegisters, err.Error())
	}
	return regs.values(), nil
}

func (b *Backend) WriteRegister(ctx context.Context, tid uint64, name string, value uint64) error {
	var regs amd64Regs
	err := b.do(func() error {
		if err := ptraceGetRegs(int(tid), &regs); err != nil {
			return err
		}
		if !regs.set(name, value) {
			return errors.Errorf("unknown register %q", name)
		}
		return ptraceSetRegs(int(tid), &regs)
	})
	if err != nil {
		return cpu.NewError(cpu.ErrCouldntWriteRegisters, err.Error())
	}
	return nil
}

func (b *Backend) readRegsLocked(tid int) (*amd64Regs, error) {
	var regs amd64Regs
	if err := ptraceGetRegs(tid, &regs); err != nil {
		return nil, err
	}
	return &regs, nil
}

func (b *Backend) SuspendThread(ctx context.Context, tid uint64) error {
	return b.Halt(ctx)
}

func (b *Backend) ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error) {
	buf := make([]byte, size)
	err := b.do(func() error {
		n, err := unix.PtracePeekData(b.pid, uintptr(addr), buf)
		if err != nil {
			return err
		}
		if n != size {
			return errors.Errorf("short peek: got %d want %d", n, size)
		}
		return nil
	})
	if err != nil {
		return nil, cpu.NewError(cpu.ErrCouldntReadMemory, err.Error())
	}
	return buf, nil
}

func (b *Backend) WriteMemory(ctx context.Context, addr uint64, data []byte) error {
	err := b.do(func() error {
		n, err := unix.PtracePokeData(b.pid, uintptr(addr), data)
		if err != nil {
			return err
		}
		if n != len(data) {
			return errors.Errorf("short poke: wrote %d want %d", n, len(data))
		}
		return nil
	})
	if err != nil {
		return cpu.NewError(cpu.ErrCouldntWriteMemory, err.Error())
	}
	return nil
}

func (b *Backend) EnumerateValidMemory(ctx context.Context) ([]backend.MemoryRange, error) {
	b.mu.Lock()
	pid := b.pid
	b.mu.Unlock()
	return readProcMaps(pid)
}

func (b *Backend) SetBreakpoint(ctx context.Context, addr uint64, kind cpu.BreakpointKind) error {
	b.mu.Lock()
	if _, exists := b.trapOrig[addr]; exists {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()
	opcode := amd64BreakpointOpcode
	orig, err := b.ReadMemory(ctx, addr, len(opcode))
	if err != nil {
		return cpu.NewError(cpu.ErrCouldntSetBreakpoint, err.Error())
	}
	if err := b.WriteMemory(ctx, addr, opcode); err != nil {
		return cpu.NewError(cpu.ErrCouldntSetBreakpoint, err.Error())
	}
	b.mu.Lock()
	b.trapOrig[addr] = orig
	b.mu.Unlock()
	return nil
}

func (b *Backend) RemoveBreakpoint(ctx context.Context, addr uint64, kind cpu.BreakpointKind) error {
	b.mu.Lock()
	orig, ok := b.trapOrig[addr]
	if !ok {
		b.mu.Unlock()
		return cpu.NewError(cpu.ErrNoBreakpointAtAddress, "")
	}
	delete(b.trapOrig, addr)
	b.mu.Unlock()
	if err := b.WriteMemory(ctx, addr, orig); err != nil {
		return cpu.NewError(cpu.ErrCouldntRemoveBreakpoint, err.Error())
	}
	return nil
}

func (b *Backend) SingleStep(ctx context.Context, tid uint64) error {
	if err := b.do(func() error { return unix.PtraceSingleStep(b.pid) }); err != nil {
		return cpu.NewError(cpu.ErrGenericError, err.Error())
	}
	return b.waitForStop()
}

func (b *Backend) ResumeThread(ctx context.Context, tid uint64) error {
	return b.ResumeProcess(ctx)
}

func (b *Backend) ResumeProcess(ctx context.Context) error {
	if err := b.do(func() error { return unix.PtraceCont(b.pid, 0) }); err != nil {
		return cpu.NewError(cpu.ErrGenericError, err.Error())
	}
	return b.waitForStop()
}

func (b *Backend) waitForStop() error {
	var ws unix.WaitStatus
	var wpid int
	err := b.do(func() error {
		p, err := unix.Wait4(b.pid, &ws, 0, nil)
		wpid = p
		return err
	})
	if err != nil {
		return cpu.NewError(cpu.ErrGenericError, err.Error())
	}
	b.mu.Lock()
	b.threads[uint64(wpid)] = cpu.ThreadSuspended
	b.mu.Unlock()

	switch {
	case ws.Exited():
		code := int32(ws.ExitStatus())
		b.events.Push(cpu.DebugEvent{Kind: cpu.EventProcessExited, ExitCode: code, HasExitCode: true})
	case ws.Signaled():
		b.events.Push(cpu.DebugEvent{Kind: cpu.EventProcessExited, HasExitCode: false})
	case ws.Stopped() && ws.StopSignal() == unix.SIGTRAP:
		regs, rerr := b.readRegsLocked(wpid)
		var pc uint64
		if rerr == nil {
			pc = regs.pc() - uint64(len(amd64BreakpointOpcode))
		}
		b.events.Push(cpu.DebugEvent{Kind: cpu.EventBreakpointHit, Address: pc, TID: uint64(wpid)})
	case ws.Stopped():
		b.events.Push(cpu.DebugEvent{
			Kind:          cpu.EventException,
			TID:           uint64(wpid),
			ExceptionCode: uint32(ws.StopSignal()),
		})
	}
	return nil
}

func (b *Backend) Halt(ctx context.Context) error {
	if err := b.do(func() error { return unix.Kill(b.pid, unix.SIGSTOP) }); err != nil {
		return cpu.NewError(cpu.ErrGenericError, err.Error())
	}
	return b.waitForStop()
}

func (b *Backend) RegisterLayout() []cpu.RegisterDescriptor { return amd64RegisterLayout }
func (b *Backend) InstructionPointerIndex() int              { return amd64PCIndex }
func (b *Backend) AddressSizeBits() int                       { return 64 }

func (b *Backend) Options() cpu.DebuggerOptions {
	return cpu.DebuggerOptions{
		CanAttach:             true,
		CanDetach:             true,
		CanTerminate:          true,
		CanMemoryMap:          true,
		CanValidMemory:        true,
		CanMultithread:        true,
		CanSoftwareBreakpoint: true,
		CanHalt:               true,
		HasStack:              true,
		PageSize:              uint64(os.Getpagesize()),
	}
}

// CorrectBreakpointAddress is identity: waitForStop already subtracts
// the trap length from the reported PC before pushing the event.
func (b *Backend) CorrectBreakpointAddress(addr uint64) uint64 { return addr }

func (b *Backend) Events() *eventqueue.Queue { return b.events }
