// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package instrbackend

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/rdagent/rdagent/backend"
	"github.com/rdagent/rdagent/cpu"
	"github.com/rdagent/rdagent/eventqueue"
	"github.com/rdagent/rdagent/wire"
)

// Backend drives an external instrumentation runner process over a
// private framed pipe instead of debugging the target itself.
type Backend struct {
	runner Runner

	mu        sync.Mutex
	nextID    uint32
	activeTID uint64

	events *eventqueue.Queue
}

var _ backend.Backend = (*Backend)(nil)

// New constructs a Backend driving an already-built Runner. The
// runner is started lazily by Start; Attach is unsupported and never
// starts it, since an instrumentation target is always "started" from
// the agent's point of view.
func New(runner Runner, events *eventqueue.Queue) *Backend {
	return &Backend{runner: runner, events: events, activeTID: 1}
}

// call sends one request packet and returns its single matched reply,
// serialized under mu since the runner pipe supports exactly one
// request in flight at a time, same restriction as gdbremote's
// synchronous sendAndWait.
func (b *Backend) call(cmd wire.Command, args ...wire.Arg) (wire.Packet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	req := wire.Packet{Command: cmd, ID: b.nextID, Args: args}
	if err := wire.Encode(b.runner.Stdin(), req); err != nil {
		return wire.Packet{}, cpu.NewError(cpu.ErrSendError, err.Error())
	}
	reply, err := wire.Decode(b.runner.Stdout())
	if err != nil {
		return wire.Packet{}, cpu.NewError(cpu.ErrReceiveError, err.Error())
	}
	if reply.ID != req.ID {
		return wire.Packet{}, cpu.NewError(cpu.ErrUnexpectedReply, "reply id mismatch")
	}
	if reply.Command == runnerErrorCommand {
		msg := ""
		if len(reply.Args) > 0 {
			msg = reply.Args[0].String()
		}
		return wire.Packet{}, cpu.NewError(cpu.ErrGenericError, msg)
	}
	return reply, nil
}

func (b *Backend) Start(ctx context.Context, path string, argv []string) error {
	if err := b.runner.Start(); err != nil {
		return cpu.NewError(cpu.ErrCouldntOpenTarget, err.Error())
	}
	if _, err := b.call(cmdPing); err != nil {
		return cpu.NewError(cpu.ErrCouldntOpenTarget, err.Error())
	}
	b.events.Push(cpu.DebugEvent{Kind: cpu.EventProcessStarted, TID: b.ActiveThread()})
	return nil
}

// Attach is unsupported: an instrumentation runner is always launched
// fresh by this agent, it cannot be pointed at an already-running pid.
func (b *Backend) Attach(ctx context.Context, pid uint64) error {
	return cpu.NewError(cpu.ErrUnsupported, "instrbackend cannot attach to an existing pid")
}

func (b *Backend) Detach(ctx context.Context) error {
	return cpu.NewError(cpu.ErrUnsupported, "instrbackend cannot detach without terminating")
}

func (b *Backend) Terminate(ctx context.Context) error {
	if _, err := b.call(cmdTerminateProcess); err != nil {
		_ = b.runner.Kill()
		return cpu.NewError(cpu.ErrCouldntTerminate, err.Error())
	}
	return nil
}

func (b *Backend) EnumerateThreads(ctx context.Context) ([]cpu.Thread, error) {
	reply, err := b.call(cmdListThreads)
	if err != nil {
		return nil, err
	}
	threads := make([]cpu.Thread, 0, len(reply.Args))
	for _, a := range reply.Args {
		tid, derr := a.Long()
		if derr != nil {
			return nil, cpu.NewError(cpu.ErrGenericError, derr.Error())
		}
		threads = append(threads, cpu.Thread{TID: tid, State: cpu.ThreadSuspended})
	}
	return threads, nil
}

func (b *Backend) ActiveThread() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeTID
}

func (b *Backend) SetActiveThread(ctx context.Context, tid uint64) error {
	b.mu.Lock()
	b.activeTID = tid
	b.mu.Unlock()
	return nil
}

func (b *Backend) ReadRegisters(ctx context.Context, tid uint64) ([]cpu.RegisterValue, error) {
	reply, err := b.call(cmdReadRegisters, wire.NewLongArg(tid))
	if err != nil {
		return nil, err
	}
	// Each register arrives as a pair: a data arg holding its name,
	// followed by a long arg holding its value.
	var out []cpu.RegisterValue
	for i := 0; i+1 < len(reply.Args); i += 2 {
		name := reply.Args[i].String()
		v, derr := reply.Args[i+1].Long()
		if derr != nil {
			return nil, cpu.NewError(cpu.ErrCouldntReadRegisters, derr.Error())
		}
		out = append(out, cpu.RegisterValue{Name: name, HexValue: v})
	}
	return out, nil
}

func (b *Backend) WriteRegister(ctx context.Context, tid uint64, name string, value uint64) error {
	_, err := b.call(cmdWriteRegisters, wire.NewLongArg(tid), wire.NewStringArg(name), wire.NewLongArg(value))
	if err != nil {
		return cpu.NewError(cpu.ErrCouldntWriteRegisters, err.Error())
	}
	return nil
}

func (b *Backend) ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error) {
	reply, err := b.call(cmdReadMemory, wire.NewAddressArg(addr), wire.NewIntegerArg(uint32(size)))
	if err != nil {
		return nil, cpu.NewError(cpu.ErrCouldntReadMemory, err.Error())
	}
	if len(reply.Args) != 1 {
		return nil, cpu.NewError(cpu.ErrCouldntReadMemory, "malformed read_memory reply")
	}
	return reply.Args[0].Payload, nil
}

func (b *Backend) WriteMemory(ctx context.Context, addr uint64, data []byte) error {
	_, err := b.call(cmdWriteMemory, wire.NewAddressArg(addr), wire.NewDataArg(data))
	if err != nil {
		return cpu.NewError(cpu.ErrCouldntWriteMemory, err.Error())
	}
	return nil
}

func (b *Backend) EnumerateValidMemory(ctx context.Context) ([]backend.MemoryRange, error) {
	reply, err := b.call(cmdListMemory)
	if err != nil {
		return nil, err
	}
	ranges := make([]backend.MemoryRange, 0, len(reply.Args)/2)
	for i := 0; i+1 < len(reply.Args); i += 2 {
		start, derr := reply.Args[i].Address()
		if derr != nil {
			return nil, cpu.NewError(cpu.ErrGenericError, derr.Error())
		}
		end, derr := reply.Args[i+1].Address()
		if derr != nil {
			return nil, cpu.NewError(cpu.ErrGenericError, derr.Error())
		}
		ranges = append(ranges, backend.MemoryRange{Start: start, End: end})
	}
	return ranges, nil
}

func (b *Backend) SetBreakpoint(ctx context.Context, addr uint64, kind cpu.BreakpointKind) error {
	_, err := b.call(cmdAddBreakpoint, wire.NewAddressArg(addr), wire.NewIntegerArg(uint32(kind)))
	if err != nil {
		return cpu.NewError(cpu.ErrCouldntSetBreakpoint, err.Error())
	}
	return nil
}

func (b *Backend) RemoveBreakpoint(ctx context.Context, addr uint64, kind cpu.BreakpointKind) error {
	_, err := b.call(cmdRemoveBreakpoint, wire.NewAddressArg(addr), wire.NewIntegerArg(uint32(kind)))
	if err != nil {
		return cpu.NewError(cpu.ErrCouldntRemoveBreakpoint, err.Error())
	}
	return nil
}

// SingleStep has no dedicated runner command, so this backend
// declines with unsupported rather than guess at undocumented runner
// behavior.
func (b *Backend) SingleStep(ctx context.Context, tid uint64) error {
	return cpu.NewError(cpu.ErrUnsupported, "instrbackend runner has no single-step primitive")
}

func (b *Backend) ResumeThread(ctx context.Context, tid uint64) error {
	return b.ResumeProcess(ctx)
}

// ResumeProcess issues resume_from_bp and then polls get_debug_events
// until the runner reports one, pushing it onto the event queue. This
// mirrors the native and GDB-remote backends' synchronous
// resume-then-wait shape even though the underlying transport is a
// request/reply pipe rather than a blocking wait4 or stop-reply.
func (b *Backend) ResumeProcess(ctx context.Context) error {
	if _, err := b.call(cmdResumeFromBreakpoint); err != nil {
		return cpu.NewError(cpu.ErrGenericError, err.Error())
	}
	for {
		reply, err := b.call(cmdGetDebugEvents)
		if err != nil {
			return err
		}
		if len(reply.Args) == 0 {
			continue
		}
		ev, err := decodeEvent(reply.Args)
		if err != nil {
			return cpu.NewError(cpu.ErrGenericError, err.Error())
		}
		b.events.Push(ev)
		return nil
	}
}

// SuspendThread is unsupported per the decision recorded for
// multi-thread GDB-remote/instrumentation suspend-resume: this backend
// refuses explicitly instead of silently no-op'ing.
func (b *Backend) SuspendThread(ctx context.Context, tid uint64) error {
	return cpu.NewError(cpu.ErrUnsupported, "instrbackend cannot suspend an individual thread")
}

func (b *Backend) Halt(ctx context.Context) error {
	return cpu.NewError(cpu.ErrUnsupported, "instrbackend runner has no asynchronous halt primitive")
}

func (b *Backend) RegisterLayout() []cpu.RegisterDescriptor {
	reply, err := b.call(cmdListRegisters)
	if err != nil {
		return nil
	}
	out := make([]cpu.RegisterDescriptor, 0, len(reply.Args))
	for _, a := range reply.Args {
		out = append(out, cpu.RegisterDescriptor{Name: a.String(), ByteSize: 8, Editable: true})
	}
	return out
}

func (b *Backend) InstructionPointerIndex() int { return 0 }
func (b *Backend) AddressSizeBits() int         { return 64 }

func (b *Backend) Options() cpu.DebuggerOptions {
	return cpu.DebuggerOptions{
		CanAttach:             false,
		CanDetach:             false,
		CanTerminate:          true,
		CanMemoryMap:          true,
		CanValidMemory:        true,
		CanMultithread:        false,
		CanSoftwareBreakpoint: true,
		CanHalt:               false,
		HasStack:              true,
	}
}

func (b *Backend) CorrectBreakpointAddress(addr uint64) uint64 { return addr }

func (b *Backend) Events() *eventqueue.Queue { return b.events }

// decodeEvent converts a get_debug_events reply's args into a
// cpu.DebugEvent: args[0] is the EventKind as an integer, remaining
// args depend on kind.
func decodeEvent(args []wire.Arg) (cpu.DebugEvent, error) {
	kind, err := args[0].Integer()
	if err != nil {
		return cpu.DebugEvent{}, errors.Wrap(err, "decode event kind")
	}
	ev := cpu.DebugEvent{Kind: cpu.EventKind(kind)}
	switch ev.Kind {
	case cpu.EventBreakpointHit:
		if len(args) >= 3 {
			addr, _ := args[1].Address()
			tid, _ := args[2].Long()
			ev.Address, ev.TID = addr, tid
		}
	case cpu.EventProcessExited:
		if len(args) >= 2 {
			code, _ := args[1].Integer()
			ev.ExitCode, ev.HasExitCode = int32(code), true
		}
	case cpu.EventException:
		if len(args) >= 3 {
			tid, _ := args[1].Long()
			code, _ := args[2].Integer()
			ev.TID, ev.ExceptionCode = tid, code
		}
	}
	return ev, nil
}
