// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wire implements the length-prefixed, typed-argument binary
// framing layer used between a debug agent and its front end. It knows
// nothing about command semantics; it only encodes and decodes packets.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Command identifies the kind of a packet: a request, a reply, or an
// unsolicited event. The numeric vocabulary is the fixed enumeration
// from the protocol's command/response/event table.
type Command uint32

// ArgTag identifies the encoding of a single argument's payload.
type ArgTag uint32

const (
	ArgAddress ArgTag = 0
	ArgInteger ArgTag = 1
	ArgData    ArgTag = 2
	ArgLong    ArgTag = 3
)

// headerSize is the byte size of the fixed packet header: command, id,
// arg_count, each a big-endian u32.
const headerSize = 12

// argHeaderSize is the byte size of a single argument header: length,
// type tag, each a big-endian u32.
const argHeaderSize = 8

// maxArgLength bounds a single argument payload to guard against a
// corrupt or hostile length field causing an unbounded allocation.
const maxArgLength = 64 << 20

// ErrMalformedPacket is returned by Decode when the input violates the
// framing contract: an illegal length, an unknown type tag, or a
// truncated payload. Per the protocol's failure semantics this is
// always fatal to the connection it was read from.
var ErrMalformedPacket = errors.New("wire: malformed packet")

// Arg is one typed argument of a Packet.
type Arg struct {
	Tag     ArgTag
	Payload []byte
}

// Packet is the framed unit exchanged over the wire: a command header
// (reused for replies and events) followed by a sequence of arguments.
type Packet struct {
	Command  Command
	ID       uint32
	Args     []Arg
}

// EncodeAddress encodes a 64-bit native address as the fixed 8-byte wire
// form: high32 then low32, each big-endian. On a 32-bit build high32
// is always zero.
func EncodeAddress(addr uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(addr>>32))
	binary.BigEndian.PutUint32(buf[4:8], uint32(addr))
	return buf
}

// DecodeAddress is the inverse of EncodeAddress. It requires exactly 8
// bytes of input.
func DecodeAddress(buf []byte) (uint64, error) {
	if len(buf) != 8 {
		return 0, errors.Wrapf(ErrMalformedPacket, "address payload length %d, want 8", len(buf))
	}
	high := binary.BigEndian.Uint32(buf[0:4])
	low := binary.BigEndian.Uint32(buf[4:8])
	return uint64(high)<<32 | uint64(low), nil
}

// EncodeInteger encodes a 32-bit integer argument payload.
func EncodeInteger(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}

// DecodeInteger is the inverse of EncodeInteger.
func DecodeInteger(buf []byte) (uint32, error) {
	if len(buf) != 4 {
		return 0, errors.Wrapf(ErrMalformedPacket, "integer payload length %d, want 4", len(buf))
	}
	return binary.BigEndian.Uint32(buf), nil
}

// NewAddressArg builds an address-tagged argument.
func NewAddressArg(addr uint64) Arg {
	return Arg{Tag: ArgAddress, Payload: EncodeAddress(addr)}
}

// NewIntegerArg builds an integer-tagged argument.
func NewIntegerArg(v uint32) Arg {
	return Arg{Tag: ArgInteger, Payload: EncodeInteger(v)}
}

// NewDataArg builds a data-blob argument; strings travel here,
// unterminated.
func NewDataArg(b []byte) Arg {
	return Arg{Tag: ArgData, Payload: b}
}

// NewStringArg builds a data-blob argument from a string.
func NewStringArg(s string) Arg {
	return Arg{Tag: ArgData, Payload: []byte(s)}
}

// NewLongArg builds a long (8-byte) integer argument.
func NewLongArg(v uint64) Arg {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return Arg{Tag: ArgLong, Payload: buf}
}

// Address decodes this argument as an address; it is the caller's job
// to know the argument's expected tag from the command vocabulary.
func (a Arg) Address() (uint64, error) { return DecodeAddress(a.Payload) }

// Integer decodes this argument as a 32-bit integer.
func (a Arg) Integer() (uint32, error) { return DecodeInteger(a.Payload) }

// Long decodes this argument as a 64-bit integer.
func (a Arg) Long() (uint64, error) {
	if len(a.Payload) != 8 {
		return 0, errors.Wrapf(ErrMalformedPacket, "long payload length %d, want 8", len(a.Payload))
	}
	return binary.BigEndian.Uint64(a.Payload), nil
}

// String returns the argument's payload interpreted as a (non
// null-terminated) string.
func (a Arg) String() string { return string(a.Payload) }

// Encode writes p to w in the fixed wire format. Encoding is
// deterministic: the same Packet always produces the same bytes.
func Encode(w io.Writer, p Packet) error {
	hdr := make([]byte, headerSize)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(p.Command))
	binary.BigEndian.PutUint32(hdr[4:8], p.ID)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(p.Args)))
	if _, err := w.Write(hdr); err != nil {
		return errors.Wrap(err, "wire: write header")
	}
	for _, arg := range p.Args {
		ahdr := make([]byte, argHeaderSize)
		binary.BigEndian.PutUint32(ahdr[0:4], uint32(len(arg.Payload)))
		binary.BigEndian.PutUint32(ahdr[4:8], uint32(arg.Tag))
		if _, err := w.Write(ahdr); err != nil {
			return errors.Wrap(err, "wire: write arg header")
		}
		if len(arg.Payload) > 0 {
			if _, err := w.Write(arg.Payload); err != nil {
				return errors.Wrap(err, "wire: write arg payload")
			}
		}
	}
	return nil
}

// Decode reads one Packet from r. It rejects an out-of-range argument
// count or length, an unrecognized type tag, and a truncated payload,
// returning ErrMalformedPacket (wrapped) in every case. A clean EOF
// before any bytes are read is returned as io.EOF so callers can
// distinguish "peer disconnected between commands" from "peer sent
// garbage".
func Decode(r io.Reader) (Packet, error) {
	hdr := make([]byte, headerSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Packet{}, errors.Wrap(ErrMalformedPacket, "truncated header")
		}
		return Packet{}, err
	}
	p := Packet{
		Command: Command(binary.BigEndian.Uint32(hdr[0:4])),
		ID:      binary.BigEndian.Uint32(hdr[4:8]),
	}
	argCount := binary.BigEndian.Uint32(hdr[8:12])
	const maxArgCount = 1 << 16
	if argCount > maxArgCount {
		return Packet{}, errors.Wrapf(ErrMalformedPacket, "arg_count %d exceeds limit", argCount)
	}
	p.Args = make([]Arg, 0, argCount)
	for i := uint32(0); i < argCount; i++ {
		ahdr := make([]byte, argHeaderSize)
		if _, err := io.ReadFull(r, ahdr); err != nil {
			return Packet{}, errors.Wrap(ErrMalformedPacket, "truncated argument header")
		}
		length := binary.BigEndian.Uint32(ahdr[0:4])
		tag := ArgTag(binary.BigEndian.Uint32(ahdr[4:8]))
		if length > maxArgLength {
			return Packet{}, errors.Wrapf(ErrMalformedPacket, "argument length %d exceeds limit", length)
		}
		switch tag {
		case ArgAddress, ArgInteger, ArgData, ArgLong:
		default:
			return Packet{}, errors.Wrapf(ErrMalformedPacket, "unknown argument tag %d", tag)
		}
		payload := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(r, payload); err != nil {
				return Packet{}, errors.Wrap(ErrMalformedPacket, "truncated argument payload")
			}
		}
		p.Args = append(p.Args, Arg{Tag: tag, Payload: payload})
	}
	return p, nil
}
