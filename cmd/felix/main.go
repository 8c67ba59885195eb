// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command felix profiles and records FEX-Emu JIT telemetry.
//
// It attaches to the per-process stats segment a FEX process publishes
// under /dev/shm, samples it on a fixed period, and either prints the
// computed frames or writes them to a compressed recording that the
// export, info, and dump subcommands consume offline.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "felix",
	Short:         "FEX-Emu profiler and recorder",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "felix:", err)
		os.Exit(1)
	}
}

// newLogger builds the stderr console logger shared by all
// subcommands. Debug output from the background samplers is gated on
// --verbose.
func newLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	log, err := cfg.Build()
	if err != nil {
		// The development config only fails on bad output paths.
		panic(err)
	}
	return log
}

func parsePID(arg string) (int32, error) {
	pid, err := strconv.ParseInt(arg, 10, 32)
	if err != nil || pid <= 0 {
		return 0, errors.Errorf("invalid PID %q", arg)
	}
	return int32(pid), nil
}
