// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gdbremote implements a client for the textual GDB
// remote-serial protocol: packetization, checksums, the ACK/NACK
// handshake, run-length decoding, stop-reply parsing and per-CPU
// register layouts. It is grounded on the real Delve project's
// pkg/proc/gdbserver.go (packet send/ACK/retransmit, stop-reply
// redirection while awaiting a specific reply class) and on
// aykevl-emculator's gdb-rsp.go (checksum/framing), with the per-CPU
// register details taken from the original C++ debug client's
// cpus/*.cpp sources.
package gdbremote

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/rdagent/rdagent/transport"
)

// ErrUnexpectedReply is returned when an inbound packet is not of the
// class the caller was waiting for and is also not a redirectable
// stop-reply, or when inbound data does not start with '$' (including
// a greet banner arriving while a reply is awaited).
var ErrUnexpectedReply = errors.New("gdbremote: unexpected reply")

// packetize wraps body as "$<body>#<hh>" where hh is the low byte of
// the sum of body's bytes, two lowercase hex digits.
func packetize(body string) string {
	return fmt.Sprintf("$%s#%02x", body, checksum(body))
}

func checksum(body string) byte {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum += body[i]
	}
	return sum
}

// conn owns the wire-level send/receive discipline for one GDB-remote
// session: packetize, ACK-wait, retransmit-on-NACK.
type conn struct {
	t *transport.Conn

	// pending is not read or written anywhere: interleaved stop-replies
	// go straight to readExpected's StopReplyHandler, and nothing is
	// buffered for a later read.
	pending []byte
}

func newConn(t *transport.Conn) *conn {
	return &conn{t: t}
}

// send transmits body as a packet and blocks until it is ACKed,
// retransmitting without bound on NACK, per spec.
func (c *conn) send(body string) error {
	pkt := []byte(packetize(body))
	for {
		if err := c.t.Write(pkt); err != nil {
			return err
		}
		ack := make([]byte, 1)
		if err := c.t.Read(ack); err != nil {
			return err
		}
		switch ack[0] {
		case '+':
			return nil
		case '-':
			continue // retransmit
		default:
			return errors.Wrapf(ErrUnexpectedReply, "expected +/- ack, got %q", ack[0])
		}
	}
}

// sendBinary transmits a pre-framed binary packet (the body portion
// of an X command, which may contain raw bytes needing GDB's
// '}'-escape rather than the plain string framing send() does) and
// waits for ACK/NACK exactly like send.
func (c *conn) sendBinary(framedBody []byte) error {
	pkt := append([]byte{'$'}, framedBody...)
	pkt = append(pkt, '#')
	pkt = append(pkt, fmt.Sprintf("%02x", checksumBytes(framedBody))...)
	for {
		if err := c.t.Write(pkt); err != nil {
			return err
		}
		ack := make([]byte, 1)
		if err := c.t.Read(ack); err != nil {
			return err
		}
		switch ack[0] {
		case '+':
			return nil
		case '-':
			continue
		default:
			return errors.Wrapf(ErrUnexpectedReply, "expected +/- ack, got %q", ack[0])
		}
	}
}

func checksumBytes(body []byte) byte {
	var sum byte
	for _, b := range body {
		sum += b
	}
	return sum
}

// escapeBinary applies GDB remote protocol's binary escaping: '$',
// '#', '}' and '*' are replaced by '}' followed by the byte XORed
// with 0x20.
func escapeBinary(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		switch b {
		case '$', '#', '}', '*':
			out = append(out, '}', b^0x20)
		default:
			out = append(out, b)
		}
	}
	return out
}

// readPacket reads one "$<body>#<hh>" packet (the leading '$' may
// already have been consumed by a previous partial read, which this
// implementation never leaves pending, so every call expects '$'
// first) and ACKs it.
func (c *conn) readPacket() (body string, err error) {
	marker := make([]byte, 1)
	if err := c.t.Read(marker); err != nil {
		return "", err
	}
	if marker[0] != '$' {
		return "", errors.Wrapf(ErrUnexpectedReply, "expected packet start '$', got %q", marker[0])
	}
	var buf []byte
	for {
		b := make([]byte, 1)
		if err := c.t.Read(b); err != nil {
			return "", err
		}
		if b[0] == '#' {
			break
		}
		buf = append(buf, b[0])
	}
	sum := make([]byte, 2)
	if err := c.t.Read(sum); err != nil {
		return "", err
	}
	var got byte
	if _, err := fmt.Sscanf(string(sum), "%02x", &got); err != nil {
		return "", errors.Wrap(ErrUnexpectedReply, "malformed checksum")
	}
	if got != checksum(string(buf)) {
		if err := c.t.Write([]byte{'-'}); err != nil {
			return "", err
		}
		return c.readPacket() // NACK and retry per spec's ACK/NACK handshake
	}
	if err := c.t.Write([]byte{'+'}); err != nil {
		return "", err
	}
	return string(buf), nil
}

// StopReplyHandler is invoked with any stop-reply ($T.. / $S..)
// observed while the connection is waiting for some other expected
// reply class. It runs synchronously on the reading goroutine,
// matching the spec's "handed to the callback synchronously on the
// reading thread" contract. Greet banners are not redirected here: a
// banner arriving while a reply is awaited makes readPacket return
// ErrUnexpectedReply.
type StopReplyHandler func(body string)

// readExpected reads packets until one classifies as want, handing
// any interleaved stop-reply to onStopReply instead of returning it.
// An unexpected reply class that is not a stop-reply is a fatal
// protocol error on this session, per spec.
func (c *conn) readExpected(want replyClass, onStopReply StopReplyHandler) (string, error) {
	for {
		body, err := c.readPacket()
		if err != nil {
			return "", err
		}
		class := classify(body)
		if class == replyStop && want != replyStop {
			if onStopReply != nil {
				onStopReply(body)
			}
			continue
		}
		if class != want {
			return "", errors.Wrapf(ErrUnexpectedReply, "got %q (class %v), want class %v", body, class, want)
		}
		return body, nil
	}
}

// sendAndWait sends body and waits for a reply of class want,
// redirecting interleaved stop-replies to onStopReply.
func (c *conn) sendAndWait(body string, want replyClass, onStopReply StopReplyHandler) (string, error) {
	if err := c.send(body); err != nil {
		return "", err
	}
	return c.readExpected(want, onStopReply)
}
