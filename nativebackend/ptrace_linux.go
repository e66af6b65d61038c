// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package nativebackend

import "runtime"

// runtimeLockOSThread pins the calling goroutine to its OS thread for
// its remaining lifetime, matching program/server/ptrace.go's
// ptraceRun: every ptrace(2) call for a tracee must come from the
// thread that attached to (or forked) it, so the goroutine running
// Backend.run must never migrate.
func runtimeLockOSThread() {
	runtime.LockOSThread()
}
