// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package instrbackend implements the out-of-process instrumentation
// backend: a debug agent that does not debug the target itself but
// drives a separate runner process (an emulator, a record/replay
// player, a custom instrumentation harness) over a private framed
// pipe, reusing the front-end wire protocol's own Packet/Arg framing
// for that private channel. It is grounded on ogle/program/proxyrpc's
// paired Request/Response convention and ogle/probe/net.go's
// length-prefixed pipe, repurposed from the teacher's in-process
// file-serving RPC set to an external-process command/reply set.
package instrbackend

import (
	"io"
	"os/exec"

	"github.com/pkg/errors"
)

// Runner abstracts the launch and framed I/O of the instrumentation
// runner process so tests can substitute an in-memory fake for
// exec.Command.
type Runner interface {
	Start() error
	Stdin() io.Writer
	Stdout() io.Reader
	Wait() error
	Kill() error
}

// execRunner launches the runner as a real child process, grounded on
// ogle/program/server/server.go's pattern of owning the target
// process's lifecycle directly rather than through a shell.
type execRunner struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

// NewExecRunner builds a Runner that execs path with argv as a child
// process, connecting to its stdin/stdout as the framed command pipe.
func NewExecRunner(path string, argv []string) (Runner, error) {
	cmd := exec.Command(path, argv...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "instrbackend: stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "instrbackend: stdout pipe")
	}
	return &execRunner{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

func (r *execRunner) Start() error             { return r.cmd.Start() }
func (r *execRunner) Stdin() io.Writer          { return r.stdin }
func (r *execRunner) Stdout() io.Reader          { return r.stdout }
func (r *execRunner) Wait() error              { return r.cmd.Wait() }
func (r *execRunner) Kill() error {
	if r.cmd.Process == nil {
		return nil
	}
	return r.cmd.Process.Kill()
}
