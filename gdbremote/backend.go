// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gdbremote

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/rdagent/rdagent/backend"
	"github.com/rdagent/rdagent/cpu"
	"github.com/rdagent/rdagent/eventqueue"
	"github.com/rdagent/rdagent/transport"
)

// Backend implements backend.Backend by composing a conn (packet
// send/ACK/retransmit) and a CPUInfo (per-CPU register layout and
// opcode). This is the "tagged enum of CPU kinds plus a dispatch
// table" design from DESIGN NOTES rather than a GdbCpu virtual
// hierarchy: all CPU-specific behavior is a pure function of cpuInfo.
type Backend struct {
	t       *transport.Conn
	c       *conn
	cpuInfo CPUInfo
	events  *eventqueue.Queue

	mu        sync.Mutex
	activeTID uint64
	suspended bool
	trapOrig  map[uint64][]byte
}

var _ backend.Backend = (*Backend)(nil)

// New builds a GDB-remote backend over an already-connected transport
// to the target's gdbserver-speaking stub.
func New(t *transport.Conn, kind CPUKind, events *eventqueue.Queue) *Backend {
	return &Backend{
		t:        t,
		c:        newConn(t),
		cpuInfo:  lookupCPUInfo(kind),
		events:   events,
		trapOrig: make(map[uint64][]byte),
	}
}

func (b *Backend) pushEvent(ev cpu.DebugEvent) {
	if b.events != nil {
		b.events.Push(ev)
	}
}

// onStopReply turns an interleaved stop-reply into a DebugEvent and
// marks the target suspended, matching the spec's "handed to the
// event callback synchronously on the reading thread" contract.
func (b *Backend) onStopReply(body string) {
	b.mu.Lock()
	b.suspended = true
	tid := b.activeTID
	b.mu.Unlock()
	ev := parseStopReply(body, tid)
	b.pushEvent(ev)
}

func parseStopReply(body string, fallbackTID uint64) cpu.DebugEvent {
	tid := fallbackTID
	if idx := strings.Index(body, "thread:"); idx >= 0 {
		rest := body[idx+len("thread:"):]
		end := strings.IndexByte(rest, ';')
		if end < 0 {
			end = len(rest)
		}
		if v, err := strconv.ParseUint(rest[:end], 16, 64); err == nil {
			tid = v
		}
	}
	if len(body) >= 3 {
		code, err := parseHexByte(body[1:3])
		if err == nil {
			return cpu.DebugEvent{Kind: cpu.EventException, TID: tid, ExceptionCode: uint32(code)}
		}
	}
	return cpu.DebugEvent{Kind: cpu.EventException, TID: tid}
}

func (b *Backend) Attach(ctx context.Context, pid uint64) error {
	if err := b.restartIfNeeded(); err != nil {
		return err
	}
	reply, err := b.c.sendAndWait("qC", replyData, b.onStopReply)
	if err == nil && strings.HasPrefix(reply, "QC") {
		if v, perr := strconv.ParseUint(reply[2:], 16, 64); perr == nil {
			b.mu.Lock()
			b.activeTID = v
			b.mu.Unlock()
		}
	}
	return nil
}

func (b *Backend) Start(ctx context.Context, path string, argv []string) error {
	return cpu.NewError(cpu.ErrUnsupported, "gdbremote: start not supported; attach to a running stub")
}

func (b *Backend) Detach(ctx context.Context) error {
	_, err := b.c.sendAndWait("D", replyOK, b.onStopReply)
	return wrapGDBErr(err, cpu.ErrCouldntDetach)
}

func (b *Backend) Terminate(ctx context.Context) error {
	if err := b.c.send("k"); err != nil {
		return wrapGDBErr(err, cpu.ErrCouldntTerminate)
	}
	return nil
}

func (b *Backend) EnumerateThreads(ctx context.Context) ([]cpu.Thread, error) {
	reply, err := b.c.sendAndWait("qfThreadInfo", replyData, b.onStopReply)
	if err != nil {
		return nil, wrapGDBErr(err, cpu.ErrGenericError)
	}
	var tids []uint64
	for {
		tids = append(tids, parseThreadIDList(reply)...)
		reply, err = b.c.sendAndWait("qsThreadInfo", replyData, b.onStopReply)
		if err != nil {
			return nil, wrapGDBErr(err, cpu.ErrGenericError)
		}
		if reply == "l" {
			break
		}
	}
	out := make([]cpu.Thread, 0, len(tids))
	for _, tid := range tids {
		out = append(out, cpu.Thread{TID: tid, State: cpu.ThreadSuspended})
	}
	return out, nil
}

// parseThreadIDList parses a "m<tid>[,tid]*" chunk into its tids.
func parseThreadIDList(chunk string) []uint64 {
	if len(chunk) == 0 || chunk[0] != 'm' {
		return nil
	}
	var out []uint64
	for _, s := range strings.Split(chunk[1:], ",") {
		if s == "" {
			continue
		}
		if v, err := strconv.ParseUint(s, 16, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func (b *Backend) ActiveThread() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeTID
}

func (b *Backend) SetActiveThread(ctx context.Context, tid uint64) error {
	if _, err := b.c.sendAndWait(fmt.Sprintf("Hg%x", tid), replyOK, b.onStopReply); err != nil {
		return wrapGDBErr(err, cpu.ErrGenericError)
	}
	if _, err := b.c.sendAndWait(fmt.Sprintf("Hc%x", tid), replyOK, b.onStopReply); err != nil {
		return wrapGDBErr(err, cpu.ErrGenericError)
	}
	b.mu.Lock()
	b.activeTID = tid
	b.mu.Unlock()
	return nil
}

func (b *Backend) rawRegisters(ctx context.Context, tid uint64) (map[string]uint64, error) {
	if err := b.SetActiveThread(ctx, tid); err != nil {
		return nil, err
	}
	hexString, err := b.c.sendAndWait("g", replyData, b.onStopReply)
	if err != nil {
		return nil, wrapGDBErr(err, cpu.ErrCouldntReadRegisters)
	}
	values, err := b.cpuInfo.ParseRegisterString(hexString)
	if err != nil {
		return nil, cpu.NewError(cpu.ErrCouldntReadRegisters, err.Error())
	}
	raw := make(map[string]uint64, len(values))
	for _, v := range values {
		raw[v.Name] = v.HexValue
	}
	return raw, nil
}

func (b *Backend) ReadRegisters(ctx context.Context, tid uint64) ([]cpu.RegisterValue, error) {
	if err := b.SetActiveThread(ctx, tid); err != nil {
		return nil, err
	}
	hexString, err := b.c.sendAndWait("g", replyData, b.onStopReply)
	if err != nil {
		return nil, wrapGDBErr(err, cpu.ErrCouldntReadRegisters)
	}
	values, err := b.cpuInfo.ParseRegisterString(hexString)
	if err != nil {
		return nil, cpu.NewError(cpu.ErrCouldntReadRegisters, err.Error())
	}
	return values, nil
}

func (b *Backend) WriteRegister(ctx context.Context, tid uint64, name string, value uint64) error {
	current, err := b.rawRegisters(ctx, tid)
	if err != nil {
		return err
	}
	hostName, newVal, err := b.cpuInfo.ResolveWrite(name, value, current)
	if err != nil {
		return cpu.NewError(cpu.ErrCouldntWriteRegisters, err.Error())
	}
	current[hostName] = newVal
	encoded := b.cpuInfo.EncodeRegisterString(current)
	if _, err := b.c.sendAndWait("G"+encoded, replyOK, b.onStopReply); err != nil {
		return wrapGDBErr(err, cpu.ErrCouldntWriteRegisters)
	}
	return nil
}

func (b *Backend) ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error) {
	chunkSize := b.cpuInfo.MaxReadSize
	if chunkSize <= 0 {
		chunkSize = size
	}
	out := make([]byte, 0, size)
	for len(out) < size {
		n := size - len(out)
		if n > chunkSize {
			n = chunkSize
		}
		cmd := fmt.Sprintf("m%x,%x", addr+uint64(len(out)), n)
		reply, err := b.c.sendAndWait(cmd, replyData, b.onStopReply)
		if err != nil {
			return nil, wrapGDBErr(err, cpu.ErrCouldntReadMemory)
		}
		decoded, err := DecodeRunLength(reply, b.cpuInfo.RunLengthVariant)
		if err != nil {
			return nil, cpu.NewError(cpu.ErrCouldntReadMemory, err.Error())
		}
		raw, err := hex.DecodeString(decoded)
		if err != nil {
			return nil, cpu.NewError(cpu.ErrCouldntReadMemory, "malformed hex payload")
		}
		out = append(out, raw...)
	}
	return out, nil
}

func (b *Backend) WriteMemory(ctx context.Context, addr uint64, data []byte) error {
	header := fmt.Sprintf("X%x,%x:", addr, len(data))
	pkt := append([]byte(header), escapeBinary(data)...)
	if err := b.c.sendBinary(pkt); err != nil {
		return wrapGDBErr(err, cpu.ErrCouldntWriteMemory)
	}
	if _, err := b.c.readExpected(replyOK, b.onStopReply); err != nil {
		return wrapGDBErr(err, cpu.ErrCouldntWriteMemory)
	}
	return nil
}

// EnumerateValidMemory is gated behind CanMemoryMap; per spec.md's
// design notes the byte-probing approach that would otherwise live
// here is "useless; too slow", so every CPU table in this package
// leaves CanMemoryMap false and this always reports unsupported.
func (b *Backend) EnumerateValidMemory(ctx context.Context) ([]backend.MemoryRange, error) {
	if !b.cpuInfo.CanMemoryMap {
		return nil, cpu.NewError(cpu.ErrUnsupported, "memory map disabled for this CPU")
	}
	return nil, cpu.NewError(cpu.ErrUnsupported, "byte-probing memory map not implemented")
}

func (b *Backend) SetBreakpoint(ctx context.Context, addr uint64, kind cpu.BreakpointKind) error {
	b.mu.Lock()
	if _, exists := b.trapOrig[addr]; exists {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	orig, err := b.ReadMemory(ctx, addr, len(b.cpuInfo.BreakpointOpcode))
	if err != nil {
		return cpu.NewError(cpu.ErrCouldntSetBreakpoint, err.Error())
	}
	if err := b.WriteMemory(ctx, addr, b.cpuInfo.BreakpointOpcode); err != nil {
		return cpu.NewError(cpu.ErrCouldntSetBreakpoint, err.Error())
	}
	b.mu.Lock()
	b.trapOrig[addr] = orig
	b.mu.Unlock()
	return nil
}

func (b *Backend) RemoveBreakpoint(ctx context.Context, addr uint64, kind cpu.BreakpointKind) error {
	b.mu.Lock()
	orig, ok := b.trapOrig[addr]
	if !ok {
		b.mu.Unlock()
		return cpu.NewError(cpu.ErrNoBreakpointAtAddress, "")
	}
	delete(b.trapOrig, addr)
	b.mu.Unlock()
	if err := b.WriteMemory(ctx, addr, orig); err != nil {
		return cpu.NewError(cpu.ErrCouldntRemoveBreakpoint, err.Error())
	}
	return nil
}

func (b *Backend) SingleStep(ctx context.Context, tid uint64) error {
	if err := b.SetActiveThread(ctx, tid); err != nil {
		return err
	}
	_, err := b.c.sendAndWait("s", replyStop, b.onStopReply)
	if err != nil {
		return wrapGDBErr(err, cpu.ErrGenericError)
	}
	b.mu.Lock()
	b.suspended = true
	b.mu.Unlock()
	return nil
}

func (b *Backend) ResumeThread(ctx context.Context, tid uint64) error {
	return b.ResumeProcess(ctx)
}

func (b *Backend) ResumeProcess(ctx context.Context) error {
	b.mu.Lock()
	b.suspended = false
	b.mu.Unlock()
	body, err := b.c.sendAndWait("c", replyStop, b.onStopReply)
	if err != nil {
		return wrapGDBErr(err, cpu.ErrGenericError)
	}
	b.onStopReply(body)
	return nil
}

// SuspendThread has no faithful GDB-remote equivalent for a single
// thread out of many (see spec.md 9's "multi-thread support is
// seriously broken" open question); this implementation takes the
// "refuse explicitly" branch rather than silently no-op.
func (b *Backend) SuspendThread(ctx context.Context, tid uint64) error {
	return cpu.NewError(cpu.ErrUnsupported, "gdbremote: per-thread suspend is not supported")
}

func (b *Backend) Halt(ctx context.Context) error {
	if err := b.t.Write([]byte{0x03}); err != nil {
		return wrapGDBErr(err, cpu.ErrGenericError)
	}
	body, err := b.c.readExpected(replyStop, nil)
	if err != nil {
		return wrapGDBErr(err, cpu.ErrGenericError)
	}
	b.onStopReply(body)
	return nil
}

func (b *Backend) RegisterLayout() []cpu.RegisterDescriptor { return b.cpuInfo.RegisterLayout() }
func (b *Backend) InstructionPointerIndex() int              { return b.cpuInfo.InstructionPointerIndex() }
func (b *Backend) AddressSizeBits() int                       { return b.cpuInfo.AddressSizeBits }
func (b *Backend) Options() cpu.DebuggerOptions               { return b.cpuInfo.Options() }
func (b *Backend) CorrectBreakpointAddress(addr uint64) uint64 {
	return b.cpuInfo.CorrectBreakpointAddress(addr)
}
func (b *Backend) HasRegularBreakpointMessage() bool { return b.cpuInfo.HasRegularBreakpointMessage() }
func (b *Backend) Events() *eventqueue.Queue         { return b.events }

func wrapGDBErr(err error, fallback cpu.ErrorCode) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, transport.ErrConnectionClosed) {
		return cpu.NewError(cpu.ErrConnectionClosed, err.Error())
	}
	if errors.Is(err, transport.ErrConnectionError) {
		return cpu.NewError(cpu.ErrConnectionError, err.Error())
	}
	if errors.Is(err, ErrUnexpectedReply) {
		return cpu.NewError(cpu.ErrUnexpectedReply, err.Error())
	}
	return cpu.NewError(fallback, err.Error())
}
