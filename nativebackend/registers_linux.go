// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package nativebackend

import (
	"golang.org/x/sys/unix"

	"github.com/rdagent/rdagent/cpu"
)

// amd64Regs wraps unix.PtraceRegs, the kernel's user_regs_struct for
// x86-64, generalizing the teacher's direct syscall.PtraceRegs usage
// in program/server/ptrace.go into a named-lookup register set.
type amd64Regs struct {
	raw unix.PtraceRegs
}

func ptraceGetRegs(tid int, r *amd64Regs) error {
	return unix.PtraceGetRegs(tid, &r.raw)
}

func ptraceSetRegs(tid int, r *amd64Regs) error {
	return unix.PtraceSetRegs(tid, &r.raw)
}

func (r *amd64Regs) pc() uint64 { return r.raw.Rip }

// amd64RegisterLayout lists the general-purpose and segment registers
// the native backend exposes, in the order ReadRegisters reports them.
var amd64RegisterLayout = []cpu.RegisterDescriptor{
	{Name: "RAX", ByteSize: 8, Editable: true},
	{Name: "RBX", ByteSize: 8, Editable: true},
	{Name: "RCX", ByteSize: 8, Editable: true},
	{Name: "RDX", ByteSize: 8, Editable: true},
	{Name: "RSI", ByteSize: 8, Editable: true},
	{Name: "RDI", ByteSize: 8, Editable: true},
	{Name: "RBP", ByteSize: 8, Editable: true},
	{Name: "RSP", ByteSize: 8, Editable: true},
	{Name: "R8", ByteSize: 8, Editable: true},
	{Name: "R9", ByteSize: 8, Editable: true},
	{Name: "R10", ByteSize: 8, Editable: true},
	{Name: "R11", ByteSize: 8, Editable: true},
	{Name: "R12", ByteSize: 8, Editable: true},
	{Name: "R13", ByteSize: 8, Editable: true},
	{Name: "R14", ByteSize: 8, Editable: true},
	{Name: "R15", ByteSize: 8, Editable: true},
	{Name: "RIP", ByteSize: 8, Editable: true},
	{Name: "EFLAGS", ByteSize: 8, Editable: true},
	{Name: "CS", ByteSize: 8, Editable: false},
	{Name: "SS", ByteSize: 8, Editable: false},
	{Name: "DS", ByteSize: 8, Editable: false},
	{Name: "ES", ByteSize: 8, Editable: false},
	{Name: "FS", ByteSize: 8, Editable: false},
	{Name: "GS", ByteSize: 8, Editable: false},
}

// amd64PCIndex is RIP's position in amd64RegisterLayout.
const amd64PCIndex = 16

// amd64BreakpointOpcode is the single-byte INT3 trap instruction.
var amd64BreakpointOpcode = []byte{0xCC}

func (r *amd64Regs) values() []cpu.RegisterValue {
	raw := &r.raw
	mk := func(name string, v uint64) cpu.RegisterValue {
		return cpu.RegisterValue{
			Name:     name,
			HexValue: v,
			IsPC:     name == "RIP",
			IsSP:     name == "RSP",
		}
	}
	return []cpu.RegisterValue{
		mk("RAX", raw.Rax), mk("RBX", raw.Rbx), mk("RCX", raw.Rcx), mk("RDX", raw.Rdx),
		mk("RSI", raw.Rsi), mk("RDI", raw.Rdi), mk("RBP", raw.Rbp), mk("RSP", raw.Rsp),
		mk("R8", raw.R8), mk("R9", raw.R9), mk("R10", raw.R10), mk("R11", raw.R11),
		mk("R12", raw.R12), mk("R13", raw.R13), mk("R14", raw.R14), mk("R15", raw.R15),
		mk("RIP", raw.Rip), mk("EFLAGS", raw.Eflags),
		mk("CS", raw.Cs), mk("SS", raw.Ss), mk("DS", raw.Ds), mk("ES", raw.Es),
		mk("FS", raw.Fs), mk("GS", raw.Gs),
	}
}

// set writes value into the named register, returning false for an
// unknown name.
func (r *amd64Regs) set(name string, value uint64) bool {
	raw := &r.raw
	switch name {
	case "RAX":
		raw.Rax = value
	case "RBX":
		raw.Rbx = value
	case "RCX":
		raw.Rcx = value
	case "RDX":
		raw.Rdx = value
	case "RSI":
		raw.Rsi = value
	case "RDI":
		raw.Rdi = value
	case "RBP":
		raw.Rbp = value
	case "RSP":
		raw.Rsp = value
	case "R8":
		raw.R8 = value
	case "R9":
		raw.R9 = value
	case "R10":
		raw.R10 = value
	case "R11":
		raw.R11 = value
	case "R12":
		raw.R12 = value
	case "R13":
		raw.R13 = value
	case "R14":
		raw.R14 = value
	case "R15":
		raw.R15 = value
	case "RIP":
		raw.Rip = value
	case "EFLAGS":
		raw.Eflags = value
	default:
		return false
	}
	return true
}
