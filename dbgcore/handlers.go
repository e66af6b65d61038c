// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dbgcore

import (
	"context"
	"encoding/binary"
	"strings"

	"github.com/rdagent/rdagent/breakpoint"
	"github.com/rdagent/rdagent/condition"
	"github.com/rdagent/rdagent/cpu"
	"github.com/rdagent/rdagent/wire"
)

func handleAttach(c *Core, req wire.Packet) wire.Packet {
	if len(req.Args) < 1 {
		return asError(req.ID, cpu.NewError(cpu.ErrGenericError, "attach requires a pid"))
	}
	pid, err := req.Args[0].Long()
	if err != nil {
		return asError(req.ID, err)
	}
	if err := c.backend.Attach(context.Background(), pid); err != nil {
		return asError(req.ID, err)
	}
	c.transition(StateAttached)
	return wire.Packet{Command: RespAttachSucc}
}

func handleStart(c *Core, req wire.Packet) wire.Packet {
	if len(req.Args) < 1 {
		return asError(req.ID, cpu.NewError(cpu.ErrGenericError, "start requires a path"))
	}
	path := req.Args[0].String()
	argv := make([]string, 0, len(req.Args)-1)
	for _, a := range req.Args[1:] {
		argv = append(argv, a.String())
	}
	if err := c.backend.Start(context.Background(), path, argv); err != nil {
		return asError(req.ID, err)
	}
	c.transition(StateAttached)
	return wire.Packet{Command: RespStartSucc}
}

func handleDetach(c *Core, req wire.Packet) wire.Packet {
	if err := c.backend.Detach(context.Background()); err != nil {
		return asError(req.ID, err)
	}
	c.transition(StateExiting)
	return wire.Packet{Command: RespDetachSucc}
}

func handleTerminate(c *Core, req wire.Packet) wire.Packet {
	if err := c.backend.Terminate(context.Background()); err != nil {
		return asError(req.ID, err)
	}
	c.transition(StateExiting)
	return wire.Packet{Command: RespTerminateSucc}
}

// handleSetBreakpoint builds the handler for one of the three
// breakpoint kinds; all three share the same install sequence from
// spec.md 4.5: capture original bytes if absent, write the trap,
// record the table entry.
func handleSetBreakpoint(kind cpu.BreakpointKind, succ wire.Command) handlerFunc {
	return func(c *Core, req wire.Packet) wire.Packet {
		if len(req.Args) < 2 {
			return asError(req.ID, cpu.NewError(cpu.ErrGenericError, "set breakpoint requires address and id"))
		}
		addr, err := req.Args[0].Address()
		if err != nil {
			return asError(req.ID, err)
		}
		bpID, err := req.Args[1].Integer()
		if err != nil {
			return asError(req.ID, err)
		}
		ctx := context.Background()
		if err := c.backend.SetBreakpoint(ctx, addr, kind); err != nil {
			return asError(req.ID, err)
		}
		entry := breakpoint.Entry{
			Kind:       kind,
			Address:    addr,
			ID:         bpID,
			AutoResume: kind == cpu.BreakpointEcho,
		}
		if err := c.bps.Add(entry); err != nil {
			return asError(req.ID, err)
		}
		return wire.Packet{Command: succ}
	}
}

func handleRemoveBreakpoint(c *Core, req wire.Packet) wire.Packet {
	if len(req.Args) < 2 {
		return asError(req.ID, cpu.NewError(cpu.ErrGenericError, "remove breakpoint requires address and kind"))
	}
	addr, err := req.Args[0].Address()
	if err != nil {
		return asError(req.ID, err)
	}
	kindV, err := req.Args[1].Integer()
	if err != nil {
		return asError(req.ID, err)
	}
	kind := cpu.BreakpointKind(kindV)
	_, restore, err := c.bps.Remove(addr, kind)
	if err != nil {
		return asError(req.ID, err)
	}
	// The backend's own trap bookkeeping is keyed by address only, so
	// the physical trap is lifted exactly once, when the breakpoint
	// table reports no kind remains at addr.
	if restore {
		if err := c.backend.RemoveBreakpoint(context.Background(), addr, kind); err != nil {
			return asError(req.ID, err)
		}
	}
	return wire.Packet{Command: RespBPRemSucc}
}

func handleReadMemory(c *Core, req wire.Packet) wire.Packet {
	if len(req.Args) < 2 {
		return asError(req.ID, cpu.NewError(cpu.ErrGenericError, "read_memory requires address and size"))
	}
	addr, err := req.Args[0].Address()
	if err != nil {
		return asError(req.ID, err)
	}
	size, err := req.Args[1].Integer()
	if err != nil {
		return asError(req.ID, err)
	}
	data, err := c.backend.ReadMemory(context.Background(), addr, int(size))
	if err != nil {
		return asError(req.ID, err)
	}
	return wire.Packet{Command: RespReadMemorySucc, Args: []wire.Arg{wire.NewDataArg(data)}}
}

func handleWriteMemory(c *Core, req wire.Packet) wire.Packet {
	if len(req.Args) < 2 {
		return asError(req.ID, cpu.NewError(cpu.ErrGenericError, "write_memory requires address and data"))
	}
	addr, err := req.Args[0].Address()
	if err != nil {
		return asError(req.ID, err)
	}
	if err := c.backend.WriteMemory(context.Background(), addr, req.Args[1].Payload); err != nil {
		return asError(req.ID, err)
	}
	return wire.Packet{Command: RespWriteMemorySucc}
}

func handleValidMem(c *Core, req wire.Packet) wire.Packet {
	if len(req.Args) < 2 {
		return asError(req.ID, cpu.NewError(cpu.ErrGenericError, "validmem requires address and size"))
	}
	addr, err := req.Args[0].Address()
	if err != nil {
		return asError(req.ID, err)
	}
	size, err := req.Args[1].Integer()
	if err != nil {
		return asError(req.ID, err)
	}
	ranges, err := c.backend.EnumerateValidMemory(context.Background())
	if err != nil {
		return asError(req.ID, err)
	}
	end := addr + uint64(size)
	valid := uint32(0)
	for _, r := range ranges {
		if addr >= r.Start && end <= r.End {
			valid = 1
			break
		}
	}
	return wire.Packet{Command: RespValidMemSucc, Args: []wire.Arg{wire.NewIntegerArg(valid)}}
}

func handleMemMap(c *Core, req wire.Packet) wire.Packet {
	opts := c.backend.Options()
	if !opts.CanMemoryMap {
		return asError(req.ID, cpu.NewError(cpu.ErrUnsupported, "backend does not support memory maps"))
	}
	ranges, err := c.backend.EnumerateValidMemory(context.Background())
	if err != nil {
		return asError(req.ID, err)
	}
	args := make([]wire.Arg, 0, len(ranges)*2)
	for _, r := range ranges {
		args = append(args, wire.NewAddressArg(r.Start), wire.NewAddressArg(r.End))
	}
	return wire.Packet{Command: RespMemMapSucc, Args: args}
}

func handleRegisters(c *Core, req wire.Packet) wire.Packet {
	if len(req.Args) < 1 {
		return asError(req.ID, cpu.NewError(cpu.ErrGenericError, "registers requires a tid"))
	}
	tid, err := req.Args[0].Long()
	if err != nil {
		return asError(req.ID, err)
	}
	regs, err := c.backend.ReadRegisters(context.Background(), tid)
	if err != nil {
		return asError(req.ID, err)
	}
	args := make([]wire.Arg, 0, len(regs)*2)
	for _, r := range regs {
		args = append(args, wire.NewStringArg(r.Name), wire.NewLongArg(r.HexValue))
	}
	return wire.Packet{Command: RespRegistersSucc, Args: args}
}

func handleSetRegister(c *Core, req wire.Packet) wire.Packet {
	if len(req.Args) < 3 {
		return asError(req.ID, cpu.NewError(cpu.ErrGenericError, "set_register requires tid, name, value"))
	}
	tid, err := req.Args[0].Long()
	if err != nil {
		return asError(req.ID, err)
	}
	name := req.Args[1].String()
	value, err := req.Args[2].Long()
	if err != nil {
		return asError(req.ID, err)
	}
	if err := c.backend.WriteRegister(context.Background(), tid, name, value); err != nil {
		return asError(req.ID, err)
	}
	return wire.Packet{Command: RespSetRegisterSucc}
}

func handleResume(c *Core, req wire.Packet) wire.Packet {
	c.transition(StateRunning)
	if err := c.backend.ResumeProcess(context.Background()); err != nil {
		return asError(req.ID, err)
	}
	return wire.Packet{Command: RespResumeSucc}
}

func handleSingleStep(c *Core, req wire.Packet) wire.Packet {
	if len(req.Args) < 1 {
		return asError(req.ID, cpu.NewError(cpu.ErrGenericError, "single_step requires a tid"))
	}
	tid, err := req.Args[0].Long()
	if err != nil {
		return asError(req.ID, err)
	}
	c.transition(StateRunning)
	if err := c.backend.SingleStep(context.Background(), tid); err != nil {
		return asError(req.ID, err)
	}
	return wire.Packet{Command: RespSingleStepSucc}
}

func handleHalt(c *Core, req wire.Packet) wire.Packet {
	if err := c.backend.Halt(context.Background()); err != nil {
		return asError(req.ID, err)
	}
	c.transition(StateSuspended)
	return wire.Packet{Command: RespHaltSucc}
}

func handleResumeThread(c *Core, req wire.Packet) wire.Packet {
	if len(req.Args) < 1 {
		return asError(req.ID, cpu.NewError(cpu.ErrGenericError, "resume_thread requires a tid"))
	}
	tid, err := req.Args[0].Long()
	if err != nil {
		return asError(req.ID, err)
	}
	if err := c.backend.ResumeThread(context.Background(), tid); err != nil {
		return asError(req.ID, err)
	}
	return wire.Packet{Command: RespResumeThreadSucc}
}

func handleSuspendThread(c *Core, req wire.Packet) wire.Packet {
	if len(req.Args) < 1 {
		return asError(req.ID, cpu.NewError(cpu.ErrGenericError, "suspend_thread requires a tid"))
	}
	tid, err := req.Args[0].Long()
	if err != nil {
		return asError(req.ID, err)
	}
	if err := c.backend.SuspendThread(context.Background(), tid); err != nil {
		return asError(req.ID, err)
	}
	return wire.Packet{Command: RespSuspendThreadSucc}
}

func handleSetActiveThread(c *Core, req wire.Packet) wire.Packet {
	if len(req.Args) < 1 {
		return asError(req.ID, cpu.NewError(cpu.ErrGenericError, "set_active_thread requires a tid"))
	}
	tid, err := req.Args[0].Long()
	if err != nil {
		return asError(req.ID, err)
	}
	if err := c.backend.SetActiveThread(context.Background(), tid); err != nil {
		return asError(req.ID, err)
	}
	c.activeTID = tid
	return wire.Packet{Command: RespSetActiveThreadSucc}
}

func handleListThreads(c *Core, req wire.Packet) wire.Packet {
	threads, err := c.backend.EnumerateThreads(context.Background())
	if err != nil {
		return asError(req.ID, err)
	}
	args := make([]wire.Arg, 0, len(threads)*2)
	for _, t := range threads {
		args = append(args, wire.NewLongArg(t.TID), wire.NewIntegerArg(uint32(t.State)))
	}
	return wire.Packet{Command: RespListThreadsSucc, Args: args}
}

func handleSetBreakpointCondition(c *Core, req wire.Packet) wire.Packet {
	if len(req.Args) < 2 {
		return asError(req.ID, cpu.NewError(cpu.ErrGenericError, "set_breakpoint_condition requires address and condition"))
	}
	addr, err := req.Args[0].Address()
	if err != nil {
		return asError(req.ID, err)
	}
	node, err := decodeCondition(req.Args[1].Payload)
	if err != nil {
		return asError(req.ID, cpu.NewError(cpu.ErrGenericError, err.Error()))
	}
	entries := c.bps.Entries(addr)
	if len(entries) == 0 {
		return asError(req.ID, breakpoint.ErrNotFound)
	}
	for _, e := range entries {
		if err := c.bps.SetCondition(addr, e.Kind, node); err != nil {
			return asError(req.ID, err)
		}
	}
	return wire.Packet{Command: RespSetBreakpointConditionSucc}
}

func handleSetExceptionsOptions(c *Core, req wire.Packet) wire.Packet {
	if len(req.Args)%2 != 0 {
		return asError(req.ID, cpu.NewError(cpu.ErrGenericError, "set_exceptions_options requires (code, action) pairs"))
	}
	for i := 0; i+1 < len(req.Args); i += 2 {
		code, err := req.Args[i].Integer()
		if err != nil {
			return asError(req.ID, err)
		}
		action, err := req.Args[i+1].Integer()
		if err != nil {
			return asError(req.ID, err)
		}
		c.policy[code] = cpu.ExceptionAction(action)
	}
	return wire.Packet{Command: RespSetExceptionsOptionsSucc}
}

// coreEvalContext adapts a Core's active backend/thread to
// condition.EvalContext, used to test a breakpoint's condition when a
// hit is observed.
type coreEvalContext struct {
	c   *Core
	tid uint64
}

func (e *coreEvalContext) RegisterValue(name string) (uint32, bool) {
	regs, err := e.c.backend.ReadRegisters(context.Background(), e.tid)
	if err != nil {
		return 0, false
	}
	for _, r := range regs {
		if strings.EqualFold(r.Name, name) {
			return uint32(r.HexValue), true
		}
	}
	return 0, false
}

func (e *coreEvalContext) ActiveThreadID() uint32 { return uint32(e.tid) }

func (e *coreEvalContext) ReadMemory32(addr uint64) (uint32, bool) {
	data, err := e.c.backend.ReadMemory(context.Background(), addr, 4)
	if err != nil || len(data) != 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(data), true
}

var _ condition.EvalContext = (*coreEvalContext)(nil)
