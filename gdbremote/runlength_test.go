// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gdbremote

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRunLengthIdentityWithoutStar(t *testing.T) {
	got, err := DecodeRunLength("deadbeef", RunLengthStandard)
	require.NoError(t, err)
	require.Equal(t, "deadbeef", got)
}

func TestDecodeRunLengthStandard(t *testing.T) {
	// The repeat-count byte is ' ' (32), so 32-29 = 3 more copies of
	// 'x' follow the literal one.
	encoded := "x* "
	got, err := DecodeRunLength(encoded, RunLengthStandard)
	require.NoError(t, err)
	require.Equal(t, "xxxx", got)
}

func TestDecodeRunLengthCisco(t *testing.T) {
	got, err := DecodeRunLength("x*05", RunLengthCisco)
	require.NoError(t, err)
	require.Equal(t, "xxxxxx", got)
}

func TestDecodeRunLengthRejectsLeadingStar(t *testing.T) {
	_, err := DecodeRunLength("*7", RunLengthStandard)
	require.ErrorIs(t, err, ErrRunLengthDecode)
}

func TestDecodeRunLengthRejectsTrailingStar(t *testing.T) {
	_, err := DecodeRunLength("lalala*", RunLengthStandard)
	require.ErrorIs(t, err, ErrRunLengthDecode)
}

func TestDecodeRunLengthRejectsZeroCount(t *testing.T) {
	// byte-29 == 0 when byte is 29 (0x1D, non-printable but valid input).
	encoded := "x*" + string([]byte{29})
	_, err := DecodeRunLength(encoded, RunLengthStandard)
	require.ErrorIs(t, err, ErrRunLengthDecode)
}
