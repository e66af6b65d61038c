// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gdbremote

import "encoding/binary"

func powerPCGPRs() []gdbReg {
	regs := make([]gdbReg, 0, 32)
	names := []string{
		"R0", "R1", "R2", "R3", "R4", "R5", "R6", "R7",
		"R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15",
		"R16", "R17", "R18", "R19", "R20", "R21", "R22", "R23",
		"R24", "R25", "R26", "R27", "R28", "R29", "R30", "R31",
	}
	for _, n := range names {
		regs = append(regs, gdbReg{n, 4})
	}
	return regs
}

// crFlags decomposes PowerPC's 32-bit CR into its eight 4-bit fields
// CR0..CR7, per original_source/debug/client/gdb/cpus/PowerPC.cpp's
// nibble-based getRegisterNames/parseRegistersString.
func crFlags() []flagBit {
	out := make([]flagBit, 0, 8)
	for i := 0; i < 8; i++ {
		// CR0 occupies the most-significant nibble.
		offset := uint(28 - 4*i)
		out = append(out, flagBit{name: "CR" + itoa(i), host: "CR", offset: offset, width: 4})
	}
	return out
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := "0123456789"
	var buf []byte
	for i > 0 {
		buf = append([]byte{digits[i%10]}, buf...)
		i /= 10
	}
	return string(buf)
}

// powerPCCPUInfo is grounded on
// original_source/debug/client/gdb/cpus/PowerPC.cpp: 32 GPRs, PC, MSR,
// CR (decomposed into CR0..CR7), LR, CTR, XER (with CA/OV/SO flags)
// and FPSCR, plus getBreakpointData's 7F E0 00 08 trap word from the
// spec.
var powerPCCPUInfo = CPUInfo{
	Kind:            CPUPowerPC,
	AddressSizeBits: 32,
	ByteOrder:       binary.BigEndian,
	GDBRegisters: append(powerPCGPRs(),
		gdbReg{"PC", 4}, gdbReg{"MSR", 4}, gdbReg{"CR", 4},
		gdbReg{"LR", 4}, gdbReg{"CTR", 4}, gdbReg{"XER", 4}, gdbReg{"FPSCR", 4}),
	Flags: append(crFlags(),
		flagBit{name: "XER_SO", host: "XER", offset: 31},
		flagBit{name: "XER_OV", host: "XER", offset: 30},
		flagBit{name: "XER_CA", host: "XER", offset: 29},
	),
	InstructionPointerName:  "PC",
	StackPointerName:        "R1",
	BreakpointOpcode:        []byte{0x7F, 0xE0, 0x00, 0x08},
	RunLengthVariant:        RunLengthStandard,
	NeedsRestarting:         false,
	HasRegularBreakpointMsg: false,
	CanMemoryMap:            false,
	MaxReadSize:             4096,
}

// ns5xtCPUInfo is the PowerPC-based Netscreen variant: same register
// layout and trap opcode as powerPCCPUInfo, but the device greets the
// backend with a fixed banner on entering debug mode and must be
// restarted into that mode before the first command, per
// original_source/debug/client/gdb/cpus/NS5XT.cpp and spec.md 4.7's
// "Netscreen `|`x50" banner.
var ns5xtCPUInfo = func() CPUInfo {
	c := powerPCCPUInfo
	c.Kind = CPUNS5XT
	greet := make([]byte, 50)
	for i := range greet {
		greet[i] = '|'
	}
	c.GreetMessage = greet
	c.NeedsRestarting = true
	c.RestartMessage = nil // the banner arrives unsolicited; no message need be sent
	return c
}()
