// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gdbremote

import "strings"

// replyClass is the taxonomy a GDB-remote reply body is sorted into
// before the caller decides what to do with it.
type replyClass int

const (
	replyOK replyClass = iota
	replyUnsupported
	replyError
	replyStop
	replyData
	replyUnknown
)

func (c replyClass) String() string {
	switch c {
	case replyOK:
		return "ok"
	case replyUnsupported:
		return "unsupported"
	case replyError:
		return "error"
	case replyStop:
		return "stop-reply"
	case replyData:
		return "data"
	default:
		return "unknown"
	}
}

// classify sorts a reply body: "OK" is ok; an empty body is
// unsupported; "E.." is an error; "T.."/"S.." is a stop-reply;
// anything else composed of lower-case hex digits is a data reply.
func classify(body string) replyClass {
	switch {
	case body == "OK":
		return replyOK
	case body == "":
		return replyUnsupported
	case strings.HasPrefix(body, "E") && len(body) >= 3:
		return replyError
	case strings.HasPrefix(body, "T") || strings.HasPrefix(body, "S"):
		return replyStop
	case isLowerHex(body):
		return replyData
	default:
		return replyUnknown
	}
}

func isLowerHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
