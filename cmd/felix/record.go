// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/fexprof/felix/recfile"
	"github.com/fexprof/felix/session"
)

const (
	// samplePollInterval bounds how stale a due sample can get; the
	// source itself paces emission to the sample period.
	samplePollInterval = 10 * time.Millisecond

	statusInterval = 5 * time.Second
)

var (
	recordOutput   string
	recordPeriod   time.Duration
	recordDuration time.Duration
)

var recordCmd = &cobra.Command{
	Use:   "record <pid>",
	Short: "Record a running FEX process to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := parsePID(args[0])
		if err != nil {
			return err
		}
		output := recordOutput
		if output == "" {
			output = defaultRecordingName(pid)
		}
		return runRecord(pid, output, recordPeriod, recordDuration)
	},
}

func init() {
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "", "output file (default felix-<pid>-<time>.felix)")
	recordCmd.Flags().DurationVarP(&recordPeriod, "sample-period", "s", time.Second, "sample period")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "stop after this long (0 = until the target exits)")
	rootCmd.AddCommand(recordCmd)
}

func defaultRecordingName(pid int32) string {
	return fmt.Sprintf("felix-%d-%s.felix", pid, time.Now().Format("20060102-150405"))
}

func runRecord(pid int32, output string, period, maxDuration time.Duration) error {
	log := newLogger()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if maxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxDuration)
		defer cancel()
	}

	meta, err := session.Probe(pid)
	if err != nil {
		return err
	}

	w, err := recfile.Create(output, meta)
	if err != nil {
		return err
	}

	src, err := session.NewLiveSource(pid, period, w, log)
	if err != nil {
		return err
	}

	log.Info("recording",
		zap.Int32("pid", pid),
		zap.String("output", output),
		zap.Duration("sample_period", period))

	frames, loopErr := recordLoop(ctx, src, pid, log, output)

	src.Close()
	if err := w.Finish(); err != nil && loopErr == nil {
		loopErr = err
	}

	log.Info("finished",
		zap.Int("frames", frames),
		zap.String("output", output))
	return loopErr
}

func recordLoop(ctx context.Context, src *session.LiveSource, pid int32, log *zap.Logger, output string) (int, error) {
	start := time.Now()
	lastStatus := start
	frames := 0

	for {
		select {
		case <-ctx.Done():
			return frames, nil
		default:
		}

		if !processAlive(pid) {
			log.Info("target exited", zap.Int32("pid", pid))
			return frames, nil
		}

		f, err := src.NextFrame()
		if err != nil {
			return frames, err
		}
		if f != nil {
			frames++
		}

		if time.Since(lastStatus) >= statusInterval {
			log.Info("status",
				zap.Duration("elapsed", time.Since(start).Round(time.Second)),
				zap.Int("frames", frames),
				zap.Int64("bytes", fileSize(output)))
			lastStatus = time.Now()
		}

		time.Sleep(samplePollInterval)
	}
}

// processAlive reports whether pid exists, via the null signal.
func processAlive(pid int32) bool {
	return unix.Kill(int(pid), 0) == nil
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
