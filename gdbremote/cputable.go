// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gdbremote

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/rdagent/rdagent/cpu"
)

// CPUKind tags the fixed set of targets the protocol's GDB-remote
// backend speaks to. Per DESIGN NOTES "Polymorphism over CPUs", each
// per-CPU behavior is a pure function of CPUKind realized as a field
// on a CPUInfo value rather than a type hierarchy.
type CPUKind int

const (
	CPUX86 CPUKind = iota
	CPUARMLittleEndian
	CPUPowerPC
	CPUNS5XT
	CPUCisco2600
	CPUCisco3600
)

func (k CPUKind) String() string {
	switch k {
	case CPUX86:
		return "x86"
	case CPUARMLittleEndian:
		return "ARMLittleEndian"
	case CPUPowerPC:
		return "PPC603e"
	case CPUNS5XT:
		return "NS5XT"
	case CPUCisco2600:
		return "Cisco2600"
	case CPUCisco3600:
		return "Cisco3600"
	default:
		return "unknown"
	}
}

// ParseCPUTag resolves the CLI's cpu-tag strings to a CPUKind,
// returning cpu.ErrInvalidCPUString on no match.
func ParseCPUTag(tag string) (CPUKind, error) {
	switch tag {
	case "x86":
		return CPUX86, nil
	case "ARMLittleEndian":
		return CPUARMLittleEndian, nil
	case "PPC603e":
		return CPUPowerPC, nil
	case "NS5XT":
		return CPUNS5XT, nil
	case "Cisco2600":
		return CPUCisco2600, nil
	case "Cisco3600":
		return CPUCisco3600, nil
	default:
		return 0, cpu.NewError(cpu.ErrInvalidCPUString, tag)
	}
}

// gdbReg is one register as it appears, in order, inside a 'g'
// command's hex reply string.
type gdbReg struct {
	name     string
	byteSize int
}

// flagBit describes a single-bit (or multi-bit) flag register derived
// from a full host register's value, e.g. x86 CF from EFLAGS bit 0.
type flagBit struct {
	name   string
	host   string
	offset uint
	width  uint // number of bits; 1 if zero
}

func (f flagBit) bitWidth() uint {
	if f.width == 0 {
		return 1
	}
	return f.width
}

func (f flagBit) mask() uint64 {
	return (uint64(1)<<f.bitWidth() - 1) << f.offset
}

// CPUInfo is the complete per-CPU description: register layout,
// wire-string layout, breakpoint opcode, run-length variant, and
// greet/restart banners. All per-CPU methods named in DESIGN NOTES
// ("register_layout", "parse_register_string", "greet_message",
// "restart_message", "breakpoint_opcode", "runlength_variant",
// "correct_breakpoint_address", "options") are realized as fields or
// small methods on this value rather than virtual dispatch.
type CPUInfo struct {
	Kind                    CPUKind
	AddressSizeBits         int
	ByteOrder               binary.ByteOrder
	GDBRegisters            []gdbReg
	Flags                   []flagBit
	InstructionPointerName  string
	StackPointerName        string
	BreakpointOpcode        []byte
	RunLengthVariant        RunLengthVariant
	NeedsRestarting         bool
	GreetMessage            []byte
	RestartMessage          []byte
	HasRegularBreakpointMsg bool
	CanMemoryMap            bool
	MaxReadSize             int
}

// RegisterLayout returns the full external register-descriptor list:
// every full register first, then every derived flag, matching the
// order the original C++ getRegisterNames() implementations build it
// in.
func (c CPUInfo) RegisterLayout() []cpu.RegisterDescriptor {
	out := make([]cpu.RegisterDescriptor, 0, len(c.GDBRegisters)+len(c.Flags))
	for _, r := range c.GDBRegisters {
		out = append(out, cpu.RegisterDescriptor{Name: r.name, ByteSize: r.byteSize, Editable: true})
	}
	for _, f := range c.Flags {
		out = append(out, cpu.RegisterDescriptor{Name: f.name, ByteSize: 0, Editable: true})
	}
	return out
}

// InstructionPointerIndex returns the index of the PC register within
// RegisterLayout().
func (c CPUInfo) InstructionPointerIndex() int {
	for i, r := range c.GDBRegisters {
		if r.name == c.InstructionPointerName {
			return i
		}
	}
	return -1
}

// ParseRegisterString decodes a 'g' command's hex reply into register
// values: splits the string at each register's known byte width,
// flips byte order if little-endian, then derives flag registers from
// their host register's bits.
func (c CPUInfo) ParseRegisterString(hexString string) ([]cpu.RegisterValue, error) {
	raw, err := hex.DecodeString(hexString)
	if err != nil {
		return nil, errors.Wrap(err, "gdbremote: malformed register string")
	}
	values := make(map[string]uint64, len(c.GDBRegisters))
	offset := 0
	for _, r := range c.GDBRegisters {
		if offset+r.byteSize > len(raw) {
			return nil, errors.Errorf("gdbremote: register string too short for %s", r.name)
		}
		chunk := raw[offset : offset+r.byteSize]
		values[r.name] = decodeRegisterBytes(chunk, c.ByteOrder)
		offset += r.byteSize
	}
	out := make([]cpu.RegisterValue, 0, len(c.GDBRegisters)+len(c.Flags))
	for _, r := range c.GDBRegisters {
		v := values[r.name]
		out = append(out, cpu.RegisterValue{
			Name:     r.name,
			HexValue: v,
			IsPC:     r.name == c.InstructionPointerName,
			IsSP:     r.name == c.StackPointerName,
		})
	}
	for _, f := range c.Flags {
		host, ok := values[f.host]
		if !ok {
			continue
		}
		v := (host & f.mask()) >> f.offset
		out = append(out, cpu.RegisterValue{Name: f.name, HexValue: v})
	}
	return out, nil
}

func decodeRegisterBytes(chunk []byte, order binary.ByteOrder) uint64 {
	// The wire reply is itself big-endian hex-of-bytes; byteOrder
	// here is the *CPU's* native order, so little-endian CPUs need
	// their bytes flipped before being read as a big-endian number.
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	if order == binary.LittleEndian {
		for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}
	var v uint64
	for _, b := range buf {
		v = v<<8 | uint64(b)
	}
	return v
}

func encodeRegisterBytes(v uint64, size int, order binary.ByteOrder) []byte {
	buf := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	if order == binary.LittleEndian {
		for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}
	return buf
}

// EncodeRegisterString re-serializes values (which must contain every
// full register named in GDBRegisters) back into a 'G' command's hex
// payload.
func (c CPUInfo) EncodeRegisterString(values map[string]uint64) string {
	var raw []byte
	for _, r := range c.GDBRegisters {
		raw = append(raw, encodeRegisterBytes(values[r.name], r.byteSize, c.ByteOrder)...)
	}
	return hex.EncodeToString(raw)
}

// ResolveWrite maps a WriteRegister(name, value) request onto the
// underlying full register that must be written back to the target.
// For a full register this is the identity. For a flag register, per
// spec.md 4.7, the host register is re-read, the bit cleared, the new
// value OR'd in at the right offset, and the whole host register is
// returned for writing back.
func (c CPUInfo) ResolveWrite(name string, value uint64, current map[string]uint64) (hostName string, newHostValue uint64, err error) {
	for _, r := range c.GDBRegisters {
		if r.name == name {
			return name, value, nil
		}
	}
	for _, f := range c.Flags {
		if f.name == name {
			host, ok := current[f.host]
			if !ok {
				return "", 0, errors.Errorf("gdbremote: host register %s not available", f.host)
			}
			cleared := host &^ f.mask()
			shifted := (value << f.offset) & f.mask()
			return f.host, cleared | shifted, nil
		}
	}
	return "", 0, cpu.NewError(cpu.ErrCouldntWriteRegisters, "unknown register "+name)
}

// Options returns this CPU's DebuggerOptions.
func (c CPUInfo) Options() cpu.DebuggerOptions {
	return cpu.DebuggerOptions{
		CanAttach:             true,
		CanDetach:             true,
		CanTerminate:          true,
		CanMemoryMap:          c.CanMemoryMap,
		CanValidMemory:        c.CanMemoryMap,
		CanMultithread:        true,
		CanSoftwareBreakpoint: true,
		CanHalt:               true,
		HasStack:              c.StackPointerName != "",
		PageSize:              4096,
		CanTraceCount:         false,
		CanBreakOnModuleLoad:  false,
		CanBreakOnModuleUnload: false,
	}
}

// CorrectBreakpointAddress subtracts the trap opcode's length on
// architectures (x86) where the trap delivers PC after the opcode;
// identity otherwise.
func (c CPUInfo) CorrectBreakpointAddress(addr uint64) uint64 {
	if c.Kind == CPUX86 {
		return addr - uint64(len(c.BreakpointOpcode))
	}
	return addr
}

// HasRegularBreakpointMessage reports whether this CPU's stub emits a
// distinct "breakpoint" reply instead of a generic "stopped" one.
func (c CPUInfo) HasRegularBreakpointMessage() bool { return c.HasRegularBreakpointMsg }

func lookupCPUInfo(k CPUKind) CPUInfo {
	switch k {
	case CPUX86:
		return x86CPUInfo
	case CPUARMLittleEndian:
		return armLECPUInfo
	case CPUPowerPC:
		return powerPCCPUInfo
	case CPUNS5XT:
		return ns5xtCPUInfo
	case CPUCisco2600:
		return cisco2600CPUInfo
	case CPUCisco3600:
		return cisco3600CPUInfo
	default:
		return x86CPUInfo
	}
}
