// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gdbremote

import "encoding/binary"

func mipsGPRs() []gdbReg {
	names := []string{
		"ZERO", "AT", "V0", "V1", "A0", "A1", "A2", "A3",
		"T0", "T1", "T2", "T3", "T4", "T5", "T6", "T7",
		"S0", "S1", "S2", "S3", "S4", "S5", "S6", "S7",
		"T8", "T9", "K0", "K1", "GP", "SP", "FP", "RA",
	}
	regs := make([]gdbReg, 0, len(names))
	for _, n := range names {
		regs = append(regs, gdbReg{n, 4})
	}
	return regs
}

// ciscoCPUInfo is the MIPS register layout the Cisco 2600/3600 class
// routers expose, grounded on spec.md 4.7's MIPS trap opcode
// "00 00 00 0D" (a BREAK instruction) and greet banner "||||"; the
// Cisco run-length variant is selected per spec.md 4.7's "each
// backend selects the variant".
func ciscoCPUInfo(kind CPUKind) CPUInfo {
	return CPUInfo{
		Kind:            kind,
		AddressSizeBits: 32,
		ByteOrder:       binary.BigEndian,
		GDBRegisters: append(mipsGPRs(),
			gdbReg{"PC", 4}, gdbReg{"HI", 4}, gdbReg{"LO", 4}),
		InstructionPointerName:  "PC",
		StackPointerName:        "SP",
		BreakpointOpcode:        []byte{0x00, 0x00, 0x00, 0x0D},
		RunLengthVariant:        RunLengthCisco,
		NeedsRestarting:         true,
		GreetMessage:            []byte("||||"),
		RestartMessage:          nil,
		HasRegularBreakpointMsg: false,
		CanMemoryMap:            false,
		MaxReadSize:             4096,
	}
}

var cisco2600CPUInfo = ciscoCPUInfo(CPUCisco2600)
var cisco3600CPUInfo = ciscoCPUInfo(CPUCisco3600)
