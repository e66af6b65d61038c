// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package nativebackend

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAmd64RegsSetAndValues(t *testing.T) {
	var r amd64Regs
	require.True(t, r.set("RAX", 0xdeadbeef))
	require.True(t, r.set("RIP", 0x401000))
	require.False(t, r.set("NOSUCH", 1))

	vals := r.values()
	byName := make(map[string]uint64, len(vals))
	for _, v := range vals {
		byName[v.Name] = v.HexValue
	}
	require.Equal(t, uint64(0xdeadbeef), byName["RAX"])
	require.Equal(t, uint64(0x401000), byName["RIP"])
	require.Equal(t, uint64(0x401000), r.pc())
}

func TestAmd64RegisterLayoutMatchesPCIndex(t *testing.T) {
	require.Equal(t, "RIP", amd64RegisterLayout[amd64PCIndex].Name)
}
