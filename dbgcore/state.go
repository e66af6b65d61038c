// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dbgcore

// State is one state of the debugger core's session state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateAttached
	StateRunning
	StateSuspended
	StateExiting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateAttached:
		return "attached"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateExiting:
		return "exiting"
	default:
		return "unknown"
	}
}

// legalTransitions enumerates the state machine's edges, mirroring
// spec.md 4.10's named transitions plus one addition: attached ->
// suspended. spec.md 4.10 only names "running -> suspended on any stop
// event", but a stop event (a breakpoint hit, a single-step trap, an
// exception) can legitimately arrive while the core is still attached
// and has never been told to resume — a fresh breakpoint firing before
// the first cmd_resume, or a single step issued straight from attached,
// both land here. Treating that as a programmer error would panic the
// dispatch goroutine on valid input, so attached -> suspended is a
// legal edge alongside running -> suspended.
var legalTransitions = map[State]map[State]bool{
	StateDisconnected: {StateConnected: true},
	StateConnected:    {StateAttached: true, StateExiting: true},
	StateAttached:     {StateRunning: true, StateSuspended: true, StateExiting: true},
	StateRunning:      {StateSuspended: true, StateExiting: true},
	StateSuspended:    {StateRunning: true, StateExiting: true},
	StateExiting:      {},
}

// transition moves the core from its current state to next, panicking
// if the edge is not in legalTransitions. Every state may transition
// to StateExiting regardless of the table above, matching spec.md
// 4.10's "any -> exiting".
func (c *Core) transition(next State) {
	if next == c.state {
		return
	}
	if next == StateExiting {
		c.state = StateExiting
		return
	}
	if !legalTransitions[c.state][next] {
		panic("dbgcore: illegal state transition " + c.state.String() + " -> " + next.String())
	}
	c.state = next
}
