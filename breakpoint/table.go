// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package breakpoint implements the per-address breakpoint table: at
// most one entry of each kind per address, with the original bytes
// captured exactly once per address and restored only once the last
// entry at that address is removed. It is grounded on the teacher's
// ogle/program/server breakpoint map and addBreakpoints/
// liftBreakpoints pair, generalized from a single simple-breakpoint
// kind to the three kinds the protocol defines.
package breakpoint

import (
	"sync"

	"github.com/rdagent/rdagent/condition"
	"github.com/rdagent/rdagent/cpu"
)

// Entry is one installed breakpoint.
type Entry struct {
	Kind          cpu.BreakpointKind
	Address       uint64
	ID            uint32
	AutoResume    bool
	SendRegisters bool
	OriginalBytes []byte
	Condition     condition.Node
}

// Table owns the set of installed breakpoints. It is normally owned
// exclusively by the dispatch thread (per the spec's concurrency
// model); the mutex here only guards the rare backend-driven re-arm
// of an echo breakpoint from a different goroutine.
type Table struct {
	mu sync.Mutex
	m  map[uint64]map[cpu.BreakpointKind]*Entry
}

// NewTable returns an empty breakpoint table.
func NewTable() *Table {
	return &Table{m: make(map[uint64]map[cpu.BreakpointKind]*Entry)}
}

// ErrAlreadyExists is returned by Add when a breakpoint of the same
// kind already exists at addr.
var ErrAlreadyExists = cpu.NewError(cpu.ErrCouldntSetBreakpoint, "breakpoint of this kind already exists at address")

// ErrNotFound is returned by Remove/Lookup when no breakpoint of the
// requested kind exists at addr.
var ErrNotFound = cpu.NewError(cpu.ErrNoBreakpointAtAddress, "no breakpoint of this kind at address")

// NeedsOriginalBytesCapture reports whether addr currently has no
// breakpoint of any kind installed, i.e. whether the caller must read
// and save the original bytes there before installing the first one.
func (t *Table) NeedsOriginalBytesCapture(addr uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m[addr]) == 0
}

// Add installs entry, which must have OriginalBytes already populated
// on first install at that address (the caller is responsible for
// calling NeedsOriginalBytesCapture and reading the bytes beforehand;
// Add copies them forward to every entry sharing the address so that
// all kinds agree on the saved snapshot).
func (t *Table) Add(entry Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	byKind, ok := t.m[entry.Address]
	if !ok {
		byKind = make(map[cpu.BreakpointKind]*Entry)
		t.m[entry.Address] = byKind
	}
	if _, exists := byKind[entry.Kind]; exists {
		return ErrAlreadyExists
	}
	if len(byKind) > 0 {
		// Original bytes are captured exactly once per address: reuse
		// whatever the first installed kind recorded, regardless of
		// what the caller passed in.
		for _, other := range byKind {
			entry.OriginalBytes = other.OriginalBytes
			break
		}
	}
	e := entry
	byKind[entry.Kind] = &e
	return nil
}

// Remove deletes the entry of the given kind at addr. It returns the
// original bytes and true for restoreBytes if this was the last
// entry at that address (the caller must then write OriginalBytes
// back to the target); otherwise restoreBytes is false because other
// kinds still depend on the trap being present.
func (t *Table) Remove(addr uint64, kind cpu.BreakpointKind) (originalBytes []byte, restoreBytes bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byKind, ok := t.m[addr]
	if !ok {
		return nil, false, ErrNotFound
	}
	e, ok := byKind[kind]
	if !ok {
		return nil, false, ErrNotFound
	}
	delete(byKind, kind)
	if len(byKind) == 0 {
		delete(t.m, addr)
		return e.OriginalBytes, true, nil
	}
	return e.OriginalBytes, false, nil
}

// SetCondition attaches cond to the breakpoint of the given kind at
// addr, replacing any condition it already carried.
func (t *Table) SetCondition(addr uint64, kind cpu.BreakpointKind, cond condition.Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	byKind, ok := t.m[addr]
	if !ok {
		return ErrNotFound
	}
	e, ok := byKind[kind]
	if !ok {
		return ErrNotFound
	}
	e.Condition = cond
	return nil
}

// Lookup returns the entry of the given kind at addr, if any.
func (t *Table) Lookup(addr uint64, kind cpu.BreakpointKind) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byKind, ok := t.m[addr]
	if !ok {
		return Entry{}, false
	}
	e, ok := byKind[kind]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns every breakpoint kind currently installed at addr,
// in no particular order.
func (t *Table) Entries(addr uint64) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	byKind, ok := t.m[addr]
	if !ok {
		return nil
	}
	out := make([]Entry, 0, len(byKind))
	for _, e := range byKind {
		out = append(out, *e)
	}
	return out
}

// All returns every installed breakpoint across every address.
func (t *Table) All() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Entry
	for _, byKind := range t.m {
		for _, e := range byKind {
			out = append(out, *e)
		}
	}
	return out
}

// Addresses returns every address with at least one installed
// breakpoint.
func (t *Table) Addresses() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint64, 0, len(t.m))
	for addr := range t.m {
		out = append(out, addr)
	}
	return out
}
