// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gdbremote

import "encoding/binary"

// armLECPUInfo is grounded on
// original_source/debug/client/gdb/cpus/ARMLittleEndian.cpp:
// getRegisterNames (R0..R12, SP, LR, PC, PSR, MODE, and the flag bits
// decomposed from PSR), getBreakpointData (the spec's fixed
// "01 00 9F EF" software breakpoint word, an SWI rather than the
// BKPT form the TODO in that file flags as still needing Thumb/Thumb-2
// handling), getInstructionPointerIndex (PC).
var armLECPUInfo = CPUInfo{
	Kind:            CPUARMLittleEndian,
	AddressSizeBits: 32,
	ByteOrder:       binary.LittleEndian,
	GDBRegisters: []gdbReg{
		{"R0", 4}, {"R1", 4}, {"R2", 4}, {"R3", 4},
		{"R4", 4}, {"R5", 4}, {"R6", 4}, {"R7", 4},
		{"R8", 4}, {"R9", 4}, {"R10", 4}, {"R11", 4}, {"R12", 4},
		{"SP", 4}, {"LR", 4}, {"PC", 4}, {"PSR", 4},
	},
	Flags: []flagBit{
		{name: "MODE", host: "PSR", offset: 0, width: 5},
		{name: "T", host: "PSR", offset: 5},
		{name: "F", host: "PSR", offset: 6},
		{name: "I", host: "PSR", offset: 7},
		{name: "A", host: "PSR", offset: 8},
		{name: "E", host: "PSR", offset: 9},
		{name: "GE", host: "PSR", offset: 16, width: 4},
		{name: "J", host: "PSR", offset: 24},
		{name: "Q", host: "PSR", offset: 27},
		{name: "V", host: "PSR", offset: 28},
		{name: "C", host: "PSR", offset: 29},
		{name: "Z", host: "PSR", offset: 30},
		{name: "N", host: "PSR", offset: 31},
	},
	InstructionPointerName:  "PC",
	StackPointerName:        "SP",
	BreakpointOpcode:        []byte{0x01, 0x00, 0x9F, 0xEF},
	RunLengthVariant:        RunLengthStandard,
	NeedsRestarting:         false,
	HasRegularBreakpointMsg: false,
	CanMemoryMap:            false,
	MaxReadSize:             4096,
}
