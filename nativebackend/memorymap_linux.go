// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package nativebackend

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/rdagent/rdagent/backend"
)

// readProcMaps enumerates a tracee's valid memory ranges from
// /proc/<pid>/maps. No third-party /proc parser appears anywhere in
// the retrieved corpus, so this is a deliberate stdlib exception to
// the ambient-stack rule; every other concern in this
// package is built on golang.org/x/sys/unix.
//
// This generalizes internal/core/process.go's splicedMemory mapping
// walk, which parsed the equivalent information out of a core file's
// NT_FILE note, into a live read of the running tracee's own map.
func readProcMaps(pid int) ([]backend.MemoryRange, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, errors.Wrap(err, "open proc maps")
	}
	defer f.Close()

	var ranges []backend.MemoryRange
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		dash := strings.IndexByte(line, '-')
		space := strings.IndexByte(line, ' ')
		if dash < 0 || space < 0 || space < dash {
			continue
		}
		var start, end uint64
		if _, err := fmt.Sscanf(line[:dash], "%x", &start); err != nil {
			continue
		}
		if _, err := fmt.Sscanf(line[dash+1:space], "%x", &end); err != nil {
			continue
		}
		ranges = append(ranges, backend.MemoryRange{Start: start, End: end})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scan proc maps")
	}
	return ranges, nil
}
