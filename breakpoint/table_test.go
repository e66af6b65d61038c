// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package breakpoint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rdagent/rdagent/cpu"
)

func TestAddRemoveRestoresOriginalBytes(t *testing.T) {
	tbl := NewTable()
	const addr = 0x401000
	require.True(t, tbl.NeedsOriginalBytesCapture(addr))
	orig := []byte{0x90, 0x90}

	require.NoError(t, tbl.Add(Entry{Kind: cpu.BreakpointSimple, Address: addr, OriginalBytes: orig}))
	require.False(t, tbl.NeedsOriginalBytesCapture(addr))

	gotBytes, restore, err := tbl.Remove(addr, cpu.BreakpointSimple)
	require.NoError(t, err)
	require.True(t, restore)
	require.Equal(t, orig, gotBytes)
	require.True(t, tbl.NeedsOriginalBytesCapture(addr))
}

func TestDuplicateKindRejected(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Add(Entry{Kind: cpu.BreakpointSimple, Address: 1, OriginalBytes: []byte{1}}))
	err := tbl.Add(Entry{Kind: cpu.BreakpointSimple, Address: 1, OriginalBytes: []byte{1}})
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestOriginalBytesCapturedOnceAcrossKinds(t *testing.T) {
	tbl := NewTable()
	const addr = 0x2000
	require.NoError(t, tbl.Add(Entry{Kind: cpu.BreakpointSimple, Address: addr, OriginalBytes: []byte{0xAA}}))
	// A second kind installed at the same address must not overwrite
	// the saved snapshot, even if it passes different bytes in.
	require.NoError(t, tbl.Add(Entry{Kind: cpu.BreakpointEcho, Address: addr, OriginalBytes: []byte{0xBB}}))

	simple, ok := tbl.Lookup(addr, cpu.BreakpointSimple)
	require.True(t, ok)
	echo, ok := tbl.Lookup(addr, cpu.BreakpointEcho)
	require.True(t, ok)
	require.Equal(t, []byte{0xAA}, simple.OriginalBytes)
	require.Equal(t, []byte{0xAA}, echo.OriginalBytes)
}

func TestRemoveOnlyRestoresOnLastEntry(t *testing.T) {
	tbl := NewTable()
	const addr = 0x3000
	require.NoError(t, tbl.Add(Entry{Kind: cpu.BreakpointSimple, Address: addr, OriginalBytes: []byte{1}}))
	require.NoError(t, tbl.Add(Entry{Kind: cpu.BreakpointStepping, Address: addr, OriginalBytes: []byte{2}}))

	_, restore, err := tbl.Remove(addr, cpu.BreakpointSimple)
	require.NoError(t, err)
	require.False(t, restore, "other kinds remain at this address")

	_, restore, err = tbl.Remove(addr, cpu.BreakpointStepping)
	require.NoError(t, err)
	require.True(t, restore, "last entry at this address must trigger a restore")
}

func TestRemoveUnknownReturnsNotFound(t *testing.T) {
	tbl := NewTable()
	_, _, err := tbl.Remove(0xDEAD, cpu.BreakpointSimple)
	require.ErrorIs(t, err, ErrNotFound)
}
