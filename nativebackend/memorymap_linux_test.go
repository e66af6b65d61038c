// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package nativebackend

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadProcMapsParsesOwnProcess(t *testing.T) {
	pid := os.Getpid()
	ranges, err := readProcMaps(pid)
	require.NoError(t, err)
	require.NotEmpty(t, ranges)
	for _, r := range ranges {
		require.True(t, r.End > r.Start, "range %#x-%#x must be non-empty", r.Start, r.End)
	}
}

func TestReadProcMapsMissingPidFails(t *testing.T) {
	// PID 0 never has a /proc entry of its own.
	_, err := readProcMaps(0)
	require.Error(t, err)
}
