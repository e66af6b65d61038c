// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cpu holds the value types shared by every concrete debugger
// backend: register descriptors and values, thread and module
// inventory entries, debug events, the exception policy, and the
// fixed error-code taxonomy. It deliberately has no dependency on the
// Backend interface itself (see package backend) so that a per-CPU
// table package can depend on cpu without pulling in the full
// behavioral contract.
package cpu

// ThreadState is the run state of a single thread.
type ThreadState int

const (
	ThreadRunning ThreadState = iota
	ThreadSuspended
)

// Thread is one inventory entry in the target's thread list. Registers
// is populated on demand and is stale between operations; callers must
// re-read it whenever the target is freshly suspended.
type Thread struct {
	TID       uint64
	State     ThreadState
	Registers []RegisterValue
}

// Module is one inventory entry in the target's loaded-module list.
// Equality is by (Name, BaseAddress, Size); ordering for deduplication
// purposes is by Path.
type Module struct {
	Name        string
	Path        string
	BaseAddress uint64
	Size        uint64
}

// Equal reports whether two modules are the same inventory entry.
func (m Module) Equal(o Module) bool {
	return m.Name == o.Name && m.BaseAddress == o.BaseAddress && m.Size == o.Size
}

// RegisterDescriptor describes one register a backend exposes,
// independent of any live value. ByteSize == 0 denotes a single-bit
// flag register rather than a full-width one.
type RegisterDescriptor struct {
	Name      string
	ByteSize  int
	Editable  bool
}

// RegisterValue is a live snapshot of one register.
type RegisterValue struct {
	Name           string
	HexValue       uint64
	PointedMemory  []byte // non-nil if this register's value was also dereferenced as a pointer
	IsPC           bool
	IsSP           bool
}

// BreakpointKind distinguishes the three breakpoint flavors the
// protocol supports.
type BreakpointKind int

const (
	BreakpointSimple BreakpointKind = iota
	BreakpointEcho
	BreakpointStepping
)

func (k BreakpointKind) String() string {
	switch k {
	case BreakpointSimple:
		return "simple"
	case BreakpointEcho:
		return "echo"
	case BreakpointStepping:
		return "stepping"
	default:
		return "unknown"
	}
}

// ExceptionAction is the policy applied to one exception code.
type ExceptionAction int

const (
	ExceptionHalt ExceptionAction = iota
	ExceptionPassToApp
	ExceptionSkipHandler
)

// ExceptionPolicy maps an exception code to the action the core should
// take when it is raised. The zero value of the map (absent key)
// means ExceptionHalt, matching the spec's stated default.
type ExceptionPolicy map[uint32]ExceptionAction

// Action returns the configured action for code, defaulting to halt.
func (p ExceptionPolicy) Action(code uint32) ExceptionAction {
	if a, ok := p[code]; ok {
		return a
	}
	return ExceptionHalt
}

// EventKind tags the variant of a DebugEvent.
type EventKind int

const (
	EventBreakpointHit EventKind = iota
	EventThreadCreated
	EventThreadExited
	EventModuleLoaded
	EventModuleUnloaded
	EventProcessStarted
	EventProcessExited
	EventException
)

// DebugEvent is the tagged union of asynchronous target events a
// backend produces. Only the fields relevant to Kind are populated.
type DebugEvent struct {
	Kind EventKind

	// breakpoint_hit
	BreakpointKind BreakpointKind
	Registers      []RegisterValue

	// common to most variants
	Address uint64
	TID     uint64

	// module_loaded / module_unloaded / process_started
	Module Module

	// process_exited
	ExitCode    int32
	HasExitCode bool

	// exception
	ExceptionCode uint32
}

// DebuggerOptions describes what a concrete backend can and cannot do,
// exactly mirroring the field list in the backend-interface section of
// the protocol spec.
type DebuggerOptions struct {
	CanAttach              bool
	CanDetach              bool
	CanTerminate           bool
	CanMemoryMap           bool
	CanValidMemory         bool
	CanMultithread         bool
	CanSoftwareBreakpoint  bool
	CanHalt                bool
	HaltBeforeCommunicating bool
	HasStack               bool
	PageSize               uint64
	CanTraceCount          bool
	CanBreakOnModuleLoad   bool
	CanBreakOnModuleUnload bool
	Exceptions             []uint32
}

// ErrorCode is the fixed error taxonomy returned by every fallible
// backend operation and echoed to the wire as a typed error reply.
type ErrorCode int

const (
	Success ErrorCode = iota
	ErrConnectionClosed
	ErrConnectionError
	ErrSendError
	ErrReceiveError
	ErrCouldntConnect
	ErrCouldntStartServer
	ErrCouldntOpenTarget
	ErrCouldntAttach
	ErrCouldntDetach
	ErrCouldntTerminate
	ErrCouldntReadMemory
	ErrCouldntWriteMemory
	ErrCouldntReadRegisters
	ErrCouldntWriteRegisters
	ErrCouldntSetBreakpoint
	ErrCouldntRemoveBreakpoint
	ErrNoBreakpointAtAddress
	ErrCouldntDetermineInstructionPointer
	ErrUnsupported
	ErrUnexpectedReply
	ErrInvalidConnectionString
	ErrInvalidCPUString
	ErrGenericError
)

func (c ErrorCode) String() string {
	switch c {
	case Success:
		return "success"
	case ErrConnectionClosed:
		return "connection_closed"
	case ErrConnectionError:
		return "connection_error"
	case ErrSendError:
		return "send_error"
	case ErrReceiveError:
		return "receive_error"
	case ErrCouldntConnect:
		return "couldnt_connect"
	case ErrCouldntStartServer:
		return "couldnt_start_server"
	case ErrCouldntOpenTarget:
		return "couldnt_open_target"
	case ErrCouldntAttach:
		return "couldnt_attach"
	case ErrCouldntDetach:
		return "couldnt_detach"
	case ErrCouldntTerminate:
		return "couldnt_terminate"
	case ErrCouldntReadMemory:
		return "couldnt_read_memory"
	case ErrCouldntWriteMemory:
		return "couldnt_write_memory"
	case ErrCouldntReadRegisters:
		return "couldnt_read_registers"
	case ErrCouldntWriteRegisters:
		return "couldnt_write_registers"
	case ErrCouldntSetBreakpoint:
		return "couldnt_set_breakpoint"
	case ErrCouldntRemoveBreakpoint:
		return "couldnt_remove_breakpoint"
	case ErrNoBreakpointAtAddress:
		return "no_breakpoint_at_address"
	case ErrCouldntDetermineInstructionPointer:
		return "couldnt_determine_instruction_pointer"
	case ErrUnsupported:
		return "unsupported"
	case ErrUnexpectedReply:
		return "unexpected_reply"
	case ErrInvalidConnectionString:
		return "invalid_connection_string"
	case ErrInvalidCPUString:
		return "invalid_cpu_string"
	case ErrGenericError:
		return "generic_error"
	default:
		return "unknown_error"
	}
}

// Error adapts an ErrorCode to the error interface so it can be
// returned directly from backend methods.
type Error struct {
	Code ErrorCode
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Msg
}

// NewError builds an *Error from a code and an optional detail
// message.
func NewError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}
