// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dbgcore implements the debugger abstraction layer: the
// session state machine, the command dispatch table, response
// formatting, exception routing and echo-breakpoint handling. It sits
// between the wire protocol (package wire, transport) and a pluggable
// backend.Backend, owning the breakpoint table and exception policy
// exclusively on its one dispatch goroutine per connection. It is
// grounded on ogle/program/server/server.go's loop/dispatch/call
// trio, generalized from a single in-process ptrace backend to
// dispatch against any backend.Backend.
package dbgcore

import (
	"context"

	"go.uber.org/zap"

	"github.com/rdagent/rdagent/backend"
	"github.com/rdagent/rdagent/breakpoint"
	"github.com/rdagent/rdagent/cpu"
	"github.com/rdagent/rdagent/eventqueue"
	"github.com/rdagent/rdagent/transport"
	"github.com/rdagent/rdagent/wire"
)

// Core owns one debugging session for the lifetime of one accepted
// peer connection.
type Core struct {
	state State

	backend backend.Backend
	bps     *breakpoint.Table
	events  *eventqueue.Queue
	policy  cpu.ExceptionPolicy

	activeTID uint64
	logger    *zap.Logger

	nextBPID uint32

	preAttached bool
}

// New constructs a Core around an already-constructed backend. logger
// may be nil, in which case zap.NewNop() is used, matching every
// test's default per SPEC_FULL 7.
func New(b backend.Backend, logger *zap.Logger) *Core {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Core{
		state:   StateDisconnected,
		backend: b,
		bps:     breakpoint.NewTable(),
		events:  b.Events(),
		policy:  make(cpu.ExceptionPolicy),
		logger:  logger,
	}
}

type handlerFunc func(c *Core, req wire.Packet) wire.Packet

// handlers is the command dispatch table, built once and shared by
// every Core instance; it holds no per-session state itself.
var handlers = map[wire.Command]handlerFunc{
	CmdAttach:                   handleAttach,
	CmdStart:                    handleStart,
	CmdDetach:                   handleDetach,
	CmdTerminate:                handleTerminate,
	CmdSetBP:                    handleSetBreakpoint(cpu.BreakpointSimple, RespBPSetSucc),
	CmdSetBPE:                   handleSetBreakpoint(cpu.BreakpointEcho, RespBPESetSucc),
	CmdSetBPS:                   handleSetBreakpoint(cpu.BreakpointStepping, RespBPSSetSucc),
	CmdRemBP:                    handleRemoveBreakpoint,
	CmdReadMemory:               handleReadMemory,
	CmdWriteMemory:              handleWriteMemory,
	CmdValidMem:                 handleValidMem,
	CmdMemMap:                   handleMemMap,
	CmdRegisters:                handleRegisters,
	CmdSetRegister:              handleSetRegister,
	CmdResume:                   handleResume,
	CmdSingleStep:               handleSingleStep,
	CmdHalt:                     handleHalt,
	CmdResumeThread:             handleResumeThread,
	CmdSuspendThread:            handleSuspendThread,
	CmdSetActiveThread:          handleSetActiveThread,
	CmdListThreads:              handleListThreads,
	CmdSetBreakpointCondition:   handleSetBreakpointCondition,
	CmdSetExceptionsOptions:     handleSetExceptionsOptions,
	CmdSetDebuggerEventSettings: handleUnsupported(RespSetDebuggerEventSettingsSucc),
	CmdListProcesses:            handleUnsupported(RespListProcessesSucc),
	CmdSelectProcess:            handleUnsupported(RespSelectProcessSucc),
	CmdListFiles:                handleUnsupported(RespListFilesSucc),
	CmdSelectFile:               handleUnsupported(RespSelectFileSucc),
	CmdSearch:                   handleUnsupported(RespSearchSucc),
}

// authCookie is the fixed tag/value pair the front end validates on
// every session, per spec.md 6's "authentication packet (a fixed tag
// and cookie the front end validates)".
const authCookie = "rdagent-auth-v1"

// Handshake sends the initial info string and authentication packet a
// peer expects immediately after accept, before it issues its first
// command. infoString is free-form and should describe supported
// options and the active backend's register layout.
func (c *Core) Handshake(conn *transport.Conn, infoString string) error {
	if err := wire.Encode(conn.IO(), wire.Packet{Command: RespInfo, Args: []wire.Arg{wire.NewStringArg(infoString)}}); err != nil {
		return err
	}
	return wire.Encode(conn.IO(), wire.Packet{Command: RespAuth, Args: []wire.Arg{wire.NewStringArg(authCookie)}})
}

// MarkAttached records that the backend's target was already selected
// from the command line before any peer connected, for the spec.md
// 4.10 "immediate auto-attach" path. Run transitions straight from
// connected to attached for such a Core instead of waiting on an
// explicit attach command.
func (c *Core) MarkAttached() {
	c.preAttached = true
}

// Run is the dispatch loop for one accepted peer connection: poll for
// an inbound command, dispatch it, drain and forward events, repeat
// until the transport errors, the peer disconnects, or ctx is
// canceled.
func (c *Core) Run(ctx context.Context, conn *transport.Conn) error {
	c.transition(StateConnected)
	if c.preAttached {
		c.transition(StateAttached)
	}
	defer func() {
		if c.state != StateExiting {
			c.transition(StateExiting)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if conn.HasData() {
			req, err := wire.Decode(conn.IO())
			if err != nil {
				c.logger.Warn("transport read failed, closing session", zap.Error(err))
				return err
			}
			reply := c.dispatch(req)
			if err := wire.Encode(conn.IO(), reply); err != nil {
				c.logger.Warn("transport write failed, closing session", zap.Error(err))
				return err
			}
		}

		c.drainEvents(conn)

		if c.state == StateExiting {
			return nil
		}
	}
}

// dispatch looks up and runs req's handler, converting a panic-free
// backend error into a RespError reply; an unrecognized command
// closes over nothing special and is itself a RespError, not a
// malformed-packet disconnect (only the framing layer disconnects).
func (c *Core) dispatch(req wire.Packet) wire.Packet {
	h, ok := handlers[req.Command]
	if !ok {
		c.logger.Debug("unknown command", zap.Uint32("command", uint32(req.Command)), zap.Uint32("id", req.ID))
		return errorReply(req.ID, cpu.ErrGenericError, "unknown command")
	}
	reply := h(c, req)
	reply.ID = req.ID
	if reply.Command == RespError && len(reply.Args) > 0 {
		code, _ := reply.Args[0].Integer()
		c.logger.Debug("command failed", zap.Uint32("id", req.ID), zap.Uint32("error_code", code))
	}
	return reply
}

func errorReply(id uint32, code cpu.ErrorCode, msg string) wire.Packet {
	return wire.Packet{
		Command: RespError,
		ID:      id,
		Args: []wire.Arg{
			wire.NewIntegerArg(uint32(code)),
			wire.NewStringArg(msg),
		},
	}
}

// asError extracts the typed error code from err, defaulting to
// generic_error for anything not already a *cpu.Error.
func asError(id uint32, err error) wire.Packet {
	if cerr, ok := err.(*cpu.Error); ok {
		return errorReply(id, cerr.Code, cerr.Msg)
	}
	return errorReply(id, cpu.ErrGenericError, err.Error())
}

func handleUnsupported(_ wire.Command) handlerFunc {
	return func(c *Core, req wire.Packet) wire.Packet {
		return asError(req.ID, cpu.NewError(cpu.ErrUnsupported, "not implemented by this agent"))
	}
}
