// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fexprof/felix/recfile"
	"github.com/fexprof/felix/sampler"
)

var (
	dumpFollow bool
	dumpSpeed  float64
)

var dumpCmd = &cobra.Command{
	Use:   "dump <recording>",
	Short: "Print a recording frame by frame",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := recfile.Open(args[0])
		if err != nil {
			return err
		}
		if dumpFollow {
			return followDump(r)
		}
		for i := 0; i < r.FrameCount(); i++ {
			writeFrameLine(os.Stdout, i, r.FrameAt(i))
		}
		return nil
	},
}

func init() {
	dumpCmd.Flags().BoolVarP(&dumpFollow, "follow", "f", false, "pace output at recording speed")
	dumpCmd.Flags().Float64Var(&dumpSpeed, "speed", 1.0, "playback speed multiplier with --follow")
	rootCmd.AddCommand(dumpCmd)
}

// followDump replays the recording in real time, printing each frame
// as it becomes due.
func followDump(r *recfile.Reader) error {
	if dumpSpeed <= 0 {
		return errors.Errorf("invalid playback speed %g", dumpSpeed)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src := recfile.NewReplaySource(r)
	src.SetSpeed(dumpSpeed)

	for !src.IsFinished() {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(samplePollInterval):
		}

		f, err := src.NextFrame()
		if err != nil {
			return err
		}
		if f != nil {
			writeFrameLine(os.Stdout, src.CurrentIndex()-1, f)
		}
	}
	return nil
}

func writeFrameLine(w io.Writer, i int, f *sampler.Frame) {
	c := &f.Computed
	fmt.Fprintf(w, "frame %4d  t=%8.1fs  threads=%-3d load=%6.2f%%  jit=%dns signal=%dns  sigbus=%d smc=%d softfloat=%d  anon=%s\n",
		i,
		float64(c.TimestampNS)/1e9,
		c.ThreadsSampled,
		c.FexLoadPercent,
		c.TotalJITTime,
		c.TotalSignalTime,
		c.TotalSigbusCount,
		c.TotalSMCCount,
		c.TotalFloatFallbackCount,
		formatBytes(c.Mem.TotalAnon))
}

// formatBytes renders a byte count with a binary unit suffix.
func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
