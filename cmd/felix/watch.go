// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fexprof/felix/fexshm"
)

const watchPollInterval = time.Second

var (
	watchPeriod    time.Duration
	watchOutputDir string
	watchOnce      bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Wait for FEX processes and record them as they appear",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(watchPeriod, watchOutputDir, watchOnce)
	},
}

func init() {
	watchCmd.Flags().DurationVarP(&watchPeriod, "sample-period", "s", time.Second, "sample period")
	watchCmd.Flags().StringVarP(&watchOutputDir, "output-dir", "d", ".", "directory for recordings")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "stop after the first recording ends")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(period time.Duration, outputDir string, once bool) error {
	log := newLogger()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("watching for FEX processes")
	recorded := make(map[int32]bool)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(watchPollInterval):
		}

		pid, ok := nextTarget(recorded)
		if !ok {
			continue
		}
		recorded[pid] = true

		output := filepath.Join(outputDir, defaultRecordingName(pid))
		log.Info("attaching", zap.Int32("pid", pid), zap.String("output", output))

		if err := runRecord(pid, output, period, 0); err != nil {
			// A target that exits mid-attach or publishes a stats
			// version we cannot read should not end the watch.
			log.Warn("recording failed", zap.Int32("pid", pid), zap.Error(err))
		}
		if once {
			return nil
		}
	}
}

// nextTarget picks the newest FEX process not yet recorded.
func nextTarget(recorded map[int32]bool) (int32, bool) {
	pids := fexshm.FindProcesses()
	for i := len(pids) - 1; i >= 0; i-- {
		if !recorded[pids[i]] {
			return pids[i], true
		}
	}
	return 0, false
}
