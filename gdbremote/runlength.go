// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gdbremote

import (
	"github.com/pkg/errors"
)

// RunLengthVariant selects how a '*' repeat-count byte is interpreted.
// The source's own comment notes the two targets disagree on whether
// the count is inclusive of the repeated byte itself; both are kept,
// selected per CPU (see DESIGN.md "Open-question decisions").
type RunLengthVariant int

const (
	// RunLengthStandard reads one following byte; the repeat count is
	// byte-29 (the convention most GDB stubs use).
	RunLengthStandard RunLengthVariant = iota
	// RunLengthCisco reads two following hex digits as the repeat
	// count verbatim.
	RunLengthCisco
)

// ErrRunLengthDecode is returned for any degenerate run-length form:
// '*' at position 0, at the end of the input, or with a zero count.
var ErrRunLengthDecode = errors.New("gdbremote: invalid run-length encoding")

// DecodeRunLength expands '*' repeat markers in encoded. For input
// without '*' it is the identity. A '*' denotes that the previous
// byte repeats; how the count is read depends on variant.
func DecodeRunLength(encoded string, variant RunLengthVariant) (string, error) {
	var out []byte
	i := 0
	for i < len(encoded) {
		c := encoded[i]
		if c != '*' {
			out = append(out, c)
			i++
			continue
		}
		if i == 0 {
			return "", errors.Wrapf(ErrRunLengthDecode, "'*' at position 0")
		}
		prev := encoded[i-1]
		var count int
		var consumed int
		switch variant {
		case RunLengthStandard:
			if i+1 >= len(encoded) {
				return "", errors.Wrapf(ErrRunLengthDecode, "'*' at end of input")
			}
			count = int(encoded[i+1]) - 29
			consumed = 1
		case RunLengthCisco:
			if i+2 >= len(encoded) {
				return "", errors.Wrapf(ErrRunLengthDecode, "'*' followed by fewer than 2 hex digits")
			}
			v, err := parseHexByte(encoded[i+1 : i+3])
			if err != nil {
				return "", errors.Wrap(ErrRunLengthDecode, err.Error())
			}
			count = int(v)
			consumed = 2
		}
		if count <= 0 {
			return "", errors.Wrapf(ErrRunLengthDecode, "non-positive repeat count %d", count)
		}
		for n := 0; n < count; n++ {
			out = append(out, prev)
		}
		i += 1 + consumed
	}
	return string(out), nil
}

func parseHexByte(s string) (byte, error) {
	if len(s) != 2 {
		return 0, errors.New("not 2 hex digits")
	}
	var v byte
	for i := 0; i < 2; i++ {
		v <<= 4
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			v |= c - '0'
		case c >= 'a' && c <= 'f':
			v |= c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v |= c - 'A' + 10
		default:
			return 0, errors.Errorf("invalid hex digit %q", c)
		}
	}
	return v, nil
}
