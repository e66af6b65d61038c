// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gdbremote

import "github.com/rdagent/rdagent/transport"

// awaitGreet blocks until the target's fixed greet banner arrives
// raw on the wire (it is not a "$...#.." packet). Returns once len(greet)
// bytes matching greet have been read.
func awaitGreet(t *transport.Conn, greet []byte) error {
	buf := make([]byte, len(greet))
	if err := t.Read(buf); err != nil {
		return err
	}
	for i := range buf {
		if buf[i] != greet[i] {
			return ErrUnexpectedReply
		}
	}
	return nil
}

// restartIfNeeded sends the CPU's restart message and waits for its
// greet banner when the target is not currently suspended and the CPU
// declares it needs restarting before a command will be answered.
// Arrival of the banner transitions the caller's notion of the target
// to suspended.
func (b *Backend) restartIfNeeded() error {
	if b.suspended || !b.cpuInfo.NeedsRestarting {
		return nil
	}
	if len(b.cpuInfo.RestartMessage) > 0 {
		if err := b.t.Write(b.cpuInfo.RestartMessage); err != nil {
			return err
		}
	}
	if err := awaitGreet(b.t, b.cpuInfo.GreetMessage); err != nil {
		return err
	}
	b.suspended = true
	return nil
}
