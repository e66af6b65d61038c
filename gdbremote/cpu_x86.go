// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gdbremote

import "encoding/binary"

// x86CPUInfo is grounded on original_source/debug/client/gdb/cpus/CpuX86.cpp:
// getRegisterNames (EAX..EFLAGS plus CF/PF/AF/ZF/SF/OF), getBreakpointData
// (0xCC), getInstructionPointerIndex (EIP), and parseRegistersString's
// per-8-hex-char, byte-flipped decode.
var x86CPUInfo = CPUInfo{
	Kind:            CPUX86,
	AddressSizeBits: 32,
	ByteOrder:       binary.LittleEndian,
	GDBRegisters: []gdbReg{
		{"EAX", 4}, {"ECX", 4}, {"EDX", 4}, {"EBX", 4},
		{"ESP", 4}, {"EBP", 4}, {"ESI", 4}, {"EDI", 4},
		{"EIP", 4}, {"EFLAGS", 4},
	},
	Flags: []flagBit{
		{name: "CF", host: "EFLAGS", offset: 0},
		{name: "PF", host: "EFLAGS", offset: 2},
		{name: "AF", host: "EFLAGS", offset: 4},
		{name: "ZF", host: "EFLAGS", offset: 6},
		{name: "SF", host: "EFLAGS", offset: 7},
		{name: "OF", host: "EFLAGS", offset: 11},
	},
	InstructionPointerName:  "EIP",
	StackPointerName:        "ESP",
	BreakpointOpcode:        []byte{0xCC},
	RunLengthVariant:        RunLengthStandard,
	NeedsRestarting:         false,
	HasRegularBreakpointMsg: false,
	CanMemoryMap:            false,
	MaxReadSize:             4096,
}
