// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"

	"github.com/fexprof/felix/fexshm"
)

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List running FEX processes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pids := fexshm.FindProcesses()
		if len(pids) == 0 {
			fmt.Fprintln(os.Stderr, "no running FEX processes found")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PID\tSEGMENT\tCOMMAND")
		for _, pid := range pids {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", pid, fexshm.SegmentName(pid), cmdline(pid))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(psCmd)
}

func cmdline(pid int32) string {
	p, err := process.NewProcess(pid)
	if err != nil {
		return ""
	}
	cl, err := p.Cmdline()
	if err != nil {
		return ""
	}
	return cl
}
