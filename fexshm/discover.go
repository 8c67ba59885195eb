// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fexshm

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// FindProcesses scans /dev/shm for stats segments and returns the pids
// of the live FEX processes that own them, in ascending order. Stale
// segments left behind by dead processes are skipped.
func FindProcesses() []int32 {
	entries, err := os.ReadDir("/dev/shm")
	if err != nil {
		return nil
	}

	var pids []int32
	for _, entry := range entries {
		name := entry.Name()
		rest, ok := strings.CutPrefix(name, "fex-")
		if !ok {
			continue
		}
		pidStr, ok := strings.CutSuffix(rest, "-stats")
		if !ok {
			continue
		}
		pid, err := strconv.ParseInt(pidStr, 10, 32)
		if err != nil {
			continue
		}
		if alive, err := process.PidExists(int32(pid)); err != nil || !alive {
			continue
		}
		pids = append(pids, int32(pid))
	}

	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids
}
