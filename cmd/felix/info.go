// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aclements/go-moremath/stats"
	"github.com/spf13/cobra"

	"github.com/fexprof/felix/recfile"
)

var infoCmd = &cobra.Command{
	Use:   "info <recording>",
	Short: "Summarize a recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := recfile.Open(args[0])
		if err != nil {
			return err
		}
		writeInfo(os.Stdout, args[0], r)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func writeInfo(w io.Writer, path string, r *recfile.Reader) {
	meta := r.Metadata()

	fmt.Fprintf(w, "File:                %s\n", path)
	fmt.Fprintf(w, "PID:                 %d\n", meta.PID)
	fmt.Fprintf(w, "FEX version:         %s\n", meta.FexVersion)
	fmt.Fprintf(w, "App type:            %s\n", meta.AppType)
	fmt.Fprintf(w, "Stats version:       %d\n", meta.StatsVersion)
	fmt.Fprintf(w, "Cycle counter freq:  %d Hz\n", meta.CycleCounterFrequency)
	fmt.Fprintf(w, "Hardware threads:    %d\n", meta.HardwareConcurrency)
	fmt.Fprintf(w, "Recording start:     %s\n", meta.RecordingStart.Format(time.RFC3339))
	fmt.Fprintf(w, "Frames:              %d\n", r.FrameCount())

	if r.FrameCount() == 0 {
		return
	}

	last := r.FrameAt(r.FrameCount() - 1).Computed
	span := time.Duration(last.TimestampNS + last.SamplePeriodNS)
	fmt.Fprintf(w, "Duration:            %s\n", span.Round(time.Millisecond))

	loads := stats.Sample{Xs: make([]float64, 0, r.FrameCount())}
	threads := stats.Sample{Xs: make([]float64, 0, r.FrameCount())}
	for i := 0; i < r.FrameCount(); i++ {
		f := r.FrameAt(i).Computed
		loads.Xs = append(loads.Xs, f.FexLoadPercent)
		threads.Xs = append(threads.Xs, float64(f.ThreadsSampled))
	}

	_, loadsMax := loads.Bounds()
	_, threadsMax := threads.Bounds()
	fmt.Fprintf(w, "FEX load %%:          mean %.2f  p50 %.2f  p99 %.2f  max %.2f\n",
		loads.Mean(), loads.Quantile(0.5), loads.Quantile(0.99), loadsMax)
	fmt.Fprintf(w, "Threads sampled:     mean %.1f  max %.0f\n",
		threads.Mean(), threadsMax)
	fmt.Fprintf(w, "Cumulative:          sigbus %d  smc %d  softfloat %d  cache misses %d  jit blocks %d\n",
		last.Cumulative.Sigbus, last.Cumulative.SMC, last.Cumulative.FloatFallback,
		last.Cumulative.CacheMiss, last.Cumulative.JIT)
}
