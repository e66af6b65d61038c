// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFramingRoundTrip(t *testing.T) {
	cases := []Packet{
		{Command: 1, ID: 1, Args: nil},
		{Command: 2, ID: 42, Args: []Arg{NewAddressArg(0x0040_1000)}},
		{Command: 3, ID: 7, Args: []Arg{
			NewIntegerArg(123),
			NewDataArg([]byte("hello world")),
			NewLongArg(0xdeadbeefcafebabe),
			NewAddressArg(0xffffffffffffffff),
		}},
		{Command: 4, ID: 9, Args: []Arg{NewDataArg(nil)}},
	}
	for _, p := range cases {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, p))
		got, err := Decode(&buf)
		require.NoError(t, err)
		require.Equal(t, p.Command, got.Command)
		require.Equal(t, p.ID, got.ID)
		require.Equal(t, len(p.Args), len(got.Args))
		for i := range p.Args {
			require.Equal(t, p.Args[i].Tag, got.Args[i].Tag)
			require.Equal(t, p.Args[i].Payload, got.Args[i].Payload)
		}
	}
}

func TestAddressRoundTrip(t *testing.T) {
	addrs := []uint64{0, 1, 0x401000, 0xffffffff, 0x100000000, 0xffffffffffffffff}
	for _, a := range addrs {
		got, err := DecodeAddress(EncodeAddress(a))
		require.NoError(t, err)
		require.Equal(t, a, got)
	}
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Packet{Command: 1, ID: 1, Args: []Arg{{Tag: ArgInteger, Payload: []byte{0, 0, 0, 1}}}}))
	raw := buf.Bytes()
	// Corrupt the argument's type tag field (bytes 16..20) to an
	// out-of-range value.
	raw[19] = 0xff
	_, err := Decode(bytes.NewReader(raw))
	require.ErrorIs(t, err, ErrMalformedPacket)
}

func TestDecodeRejectsTruncatedPacket(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Packet{
		Command: 1,
		ID:      1,
		Args: []Arg{
			NewIntegerArg(1),
			NewIntegerArg(2),
		},
	}))
	raw := buf.Bytes()
	// Claim two arguments exist but only ship the header for both plus
	// one payload: truncate after the first argument's payload.
	truncated := raw[:headerSize+argHeaderSize+4+argHeaderSize]
	_, err := Decode(bytes.NewReader(truncated))
	require.ErrorIs(t, err, ErrMalformedPacket)
}

func TestDecodeRejectsOversizedLength(t *testing.T) {
	hdr := make([]byte, headerSize)
	hdr[11] = 1 // arg_count = 1
	ahdr := make([]byte, argHeaderSize)
	ahdr[0] = 0xff
	ahdr[1] = 0xff
	ahdr[2] = 0xff
	ahdr[3] = 0xff
	raw := append(hdr, ahdr...)
	_, err := Decode(bytes.NewReader(raw))
	require.ErrorIs(t, err, ErrMalformedPacket)
}
