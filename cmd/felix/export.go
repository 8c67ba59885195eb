// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fexprof/felix/recfile"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <recording>",
	Short: "Export a recording to CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(args[0], exportOutput)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "-", "output file (- for stdout)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(input, output string) error {
	r, err := recfile.Open(input)
	if err != nil {
		return err
	}

	out := io.Writer(os.Stdout)
	if output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return errors.Wrapf(err, "failed to create %s", output)
		}
		defer f.Close()
		out = f
	}

	bw := bufio.NewWriter(out)
	if err := writeCSV(bw, r); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Exported %d frames from %s\n", r.FrameCount(), input)
	return nil
}

// csvHeader is the stable export schema. Column order never changes;
// new columns only get appended.
const csvHeader = "frame,timestamp_ns,sample_period_ns,threads_sampled," +
	"total_jit_time,total_signal_time,total_sigbus_count," +
	"total_smc_count,total_float_fallback_count," +
	"total_cache_miss_count,total_cache_read_lock_time," +
	"total_cache_write_lock_time,total_jit_count," +
	"total_jit_invocations,fex_load_percent," +
	"mem_total_anon,mem_jit_code,mem_op_dispatcher," +
	"mem_frontend,mem_cpu_backend,mem_lookup,mem_lookup_l1," +
	"mem_thread_states,mem_block_links,mem_misc," +
	"mem_jemalloc,mem_unaccounted"

func writeCSV(w io.Writer, r *recfile.Reader) error {
	if _, err := fmt.Fprintln(w, csvHeader); err != nil {
		return errors.Wrap(err, "failed to write CSV header")
	}

	for i := 0; i < r.FrameCount(); i++ {
		frame := r.FrameAt(i)
		if frame == nil {
			continue
		}
		f := &frame.Computed
		_, err := fmt.Fprintf(w,
			"%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%.4f,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d\n",
			i,
			f.TimestampNS,
			f.SamplePeriodNS,
			f.ThreadsSampled,
			f.TotalJITTime,
			f.TotalSignalTime,
			f.TotalSigbusCount,
			f.TotalSMCCount,
			f.TotalFloatFallbackCount,
			f.TotalCacheMissCount,
			f.TotalCacheReadLockTime,
			f.TotalCacheWriteLockTime,
			f.TotalJITCount,
			f.TotalJITInvocations,
			f.FexLoadPercent,
			f.Mem.TotalAnon,
			f.Mem.JITCode,
			f.Mem.OpDispatcher,
			f.Mem.Frontend,
			f.Mem.CPUBackend,
			f.Mem.Lookup,
			f.Mem.LookupL1,
			f.Mem.ThreadStates,
			f.Mem.BlockLinks,
			f.Mem.Misc,
			f.Mem.JEMalloc,
			f.Mem.Unaccounted)
		if err != nil {
			return errors.Wrapf(err, "failed to write CSV row %d", i)
		}
	}
	return nil
}
