// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dbgcore

import "github.com/rdagent/rdagent/wire"

// Command request codes, grouped per the Glossary's semantic
// families: breakpoint management, memory, registers, execution,
// thread control, target selection and configuration.
const (
	CmdAttach wire.Command = iota + 1
	CmdStart
	CmdDetach
	CmdTerminate

	CmdSetBP
	CmdSetBPE
	CmdSetBPS
	CmdRemBP

	CmdReadMemory
	CmdWriteMemory
	CmdValidMem
	CmdMemMap

	CmdRegisters
	CmdSetRegister

	CmdResume
	CmdSingleStep
	CmdHalt

	CmdResumeThread
	CmdSuspendThread
	CmdSetActiveThread
	CmdListThreads

	CmdSetBreakpointCondition
	CmdSetExceptionsOptions
	CmdSetDebuggerEventSettings

	// Out-of-scope target-selection commands and memory search: the
	// spec's glossary names these but this agent always drives exactly
	// one already-selected target and implements no search, so their
	// handlers return unsupported rather than implementing multi-target
	// selection.
	CmdListProcesses
	CmdSelectProcess
	CmdListFiles
	CmdSelectFile
	CmdSearch
)

// Success reply codes, one per request code above.
const (
	RespAttachSucc wire.Command = iota + 1000
	RespStartSucc
	RespDetachSucc
	RespTerminateSucc

	RespBPSetSucc
	RespBPESetSucc
	RespBPSSetSucc
	RespBPRemSucc

	RespReadMemorySucc
	RespWriteMemorySucc
	RespValidMemSucc
	RespMemMapSucc

	RespRegistersSucc
	RespSetRegisterSucc

	RespResumeSucc
	RespSingleStepSucc
	RespHaltSucc

	RespResumeThreadSucc
	RespSuspendThreadSucc
	RespSetActiveThreadSucc
	RespListThreadsSucc

	RespSetBreakpointConditionSucc
	RespSetExceptionsOptionsSucc
	RespSetDebuggerEventSettingsSucc

	RespListProcessesSucc
	RespSelectProcessSucc
	RespListFilesSucc
	RespSelectFileSucc
	RespSearchSucc
)

// RespError is the one generic error reply: arg[0] is the
// cpu.ErrorCode as an integer, arg[1] is a human-readable message.
const RespError wire.Command = 2000

// RespInfo and RespAuth are the two packets the core sends
// unprompted immediately after accept, per spec.md 6's initial
// handshake: a free-form info string followed by a fixed
// authentication cookie.
const (
	RespInfo wire.Command = 2001
	RespAuth wire.Command = 2002
)

// Event codes, one per DebugEvent variant.
const (
	EventBPHit wire.Command = iota + 3000
	EventBPEHit
	EventBPSHit
	EventThreadCreated
	EventThreadClosed
	EventModuleLoaded
	EventModuleUnloaded
	EventProcessClosed
	EventProcessStart
	EventExceptionOccured
)
