// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package instrbackend

import "github.com/rdagent/rdagent/wire"

// Runner-side command vocabulary. This is a private wire shared only
// between instrbackend and its runner process; it reuses the front
// end's Packet/Arg framing (package wire) rather than inventing a new
// one, exactly as proxyrpc.go reused Go's own encoding/gob framing for
// the teacher's internal RPCs instead of a bespoke format.
const (
	cmdPing wire.Command = iota
	cmdGetDebugEvents
	cmdResumeFromBreakpoint
	cmdTerminateProcess
	cmdSetExceptionAction
	cmdAddBreakpoint
	cmdRemoveBreakpoint
	cmdListThreads
	cmdSuspendThread
	cmdResumeThread
	cmdListRegisters
	cmdReadRegisters
	cmdWriteRegisters
	cmdListMemory
	cmdReadMemory
	cmdWriteMemory
)

// runnerErrorCommand is the Command a reply packet carries when the
// runner reports a failure instead of a normal result; the reply's
// first data arg is a human-readable message.
const runnerErrorCommand wire.Command = 1 << 20
