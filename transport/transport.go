// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transport provides the blocking byte-stream send/recv layer
// the debugger core reads commands through, plus the accept loop that
// hands one peer at a time to the core.
package transport

import (
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
)

// ErrConnectionClosed is returned by Read when the peer closed the
// connection cleanly (a zero-byte read).
var ErrConnectionClosed = errors.New("transport: connection closed")

// ErrConnectionError is returned by Read/Write on any other I/O
// failure.
var ErrConnectionError = errors.New("transport: connection error")

// peekDeadline bounds how long HasData blocks waiting to observe
// whether a byte has arrived. It is deliberately short: HasData is
// polled between draining the event queue and blocking on a full
// read, so it must return promptly either way.
const peekDeadline = 5 * time.Millisecond

// Conn wraps a net.Conn with the short-read-retry and peek semantics
// the protocol's transport layer requires.
type Conn struct {
	nc net.Conn

	// peeked holds a single byte read by HasData that hasn't yet been
	// consumed by Read.
	peeked    [1]byte
	hasPeeked bool
}

// NewConn wraps an already-connected net.Conn.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.nc.Close() }

// Read fills buf completely, retrying short reads, per the spec's
// "a short read is retried until the requested count is satisfied"
// contract. It returns ErrConnectionClosed on a clean peer hangup and
// ErrConnectionError on any other failure.
func (c *Conn) Read(buf []byte) error {
	n := 0
	if c.hasPeeked && len(buf) > 0 {
		buf[0] = c.peeked[0]
		c.hasPeeked = false
		n = 1
	}
	for n < len(buf) {
		m, err := c.nc.Read(buf[n:])
		if m > 0 {
			n += m
		}
		if err != nil {
			if err == io.EOF {
				if n == 0 {
					return ErrConnectionClosed
				}
				return errors.Wrap(ErrConnectionError, "short read before EOF")
			}
			return errors.Wrap(ErrConnectionError, err.Error())
		}
		if m == 0 && err == nil {
			return ErrConnectionClosed
		}
	}
	return nil
}

// Write writes buf in full, returning ErrConnectionError on failure.
func (c *Conn) Write(buf []byte) error {
	n := 0
	for n < len(buf) {
		m, err := c.nc.Write(buf[n:])
		n += m
		if err != nil {
			return errors.Wrap(ErrConnectionError, err.Error())
		}
	}
	return nil
}

// HasData reports whether a command byte has already arrived without
// blocking for it. It implements the spec's non-blocking has_data()
// predicate by setting a short read deadline and peeking one byte;
// the peeked byte (if any) is buffered and returned first by the next
// Read call.
func (c *Conn) HasData() bool {
	if c.hasPeeked {
		return true
	}
	if err := c.nc.SetReadDeadline(time.Now().Add(peekDeadline)); err != nil {
		return false
	}
	defer c.nc.SetReadDeadline(time.Time{})
	n, err := c.nc.Read(c.peeked[:])
	if n == 1 {
		c.hasPeeked = true
		return true
	}
	if err != nil {
		return false
	}
	return false
}

// ReadWriter adapts a Conn to the standard io.Reader/io.Writer pair
// package wire's Encode/Decode expect, translating Conn's
// fill-completely-or-error Read/Write into the stdlib's (n int, err
// error) shape.
type ReadWriter struct{ c *Conn }

// IO returns an io.ReadWriter view of c.
func (c *Conn) IO() ReadWriter { return ReadWriter{c: c} }

func (rw ReadWriter) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := rw.c.Read(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (rw ReadWriter) Write(p []byte) (int, error) {
	if err := rw.c.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Listener accepts one peer connection at a time, matching the
// protocol's "a new accept is not attempted until the current peer
// disconnects" discipline.
type Listener struct {
	ln net.Listener
}

// Listen starts listening on the given TCP address (e.g. ":2222").
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "transport: listen")
	}
	return &Listener{ln: ln}, nil
}

// Accept blocks for the next peer connection.
func (l *Listener) Accept() (*Conn, error) {
	nc, err := l.ln.Accept()
	if err != nil {
		return nil, errors.Wrap(err, "transport: accept")
	}
	return NewConn(nc), nil
}

// Close stops the listener.
func (l *Listener) Close() error { return l.ln.Close() }

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }
