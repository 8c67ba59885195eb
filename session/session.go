// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package session ties the segment reader, samplers, and accumulator
// into a live monitoring session, and defines the frame source
// interface shared by live sessions and recording replay.
package session // import "github.com/fexprof/felix/session"

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/fexprof/felix/fexshm"
	"github.com/fexprof/felix/sampler"
)

// SessionMetadata describes one monitoring session. Immutable after
// creation; embedded verbatim in a recording's header.
type SessionMetadata struct {
	_msgpack struct{} `msgpack:",as_array"`

	PID                   int32
	FexVersion            string
	AppType               fexshm.AppType
	StatsVersion          uint8
	CycleCounterFrequency uint64
	HardwareConcurrency   int
	RecordingStart        time.Time

	// Raw header fields captured at session start.
	Head uint32
	Size uint32
}

// A DataSource delivers computed frames, either from a live session or
// from a recording replay. NextFrame returns nil when no frame is due
// yet; callers poll.
type DataSource interface {
	NextFrame() (*sampler.Frame, error)
	Metadata() *SessionMetadata
	IsLive() bool
}

// A FrameSink receives every frame a live session produces, in strict
// sample order. recfile.Writer implements it.
type FrameSink interface {
	WriteFrame(*sampler.Frame) error
}

// Probe opens pid's stats segment just long enough to capture session
// metadata. Recording callers use it to create the output file before
// the session itself starts.
func Probe(pid int32) (*SessionMetadata, error) {
	shm, err := fexshm.Open(pid)
	if err != nil {
		return nil, err
	}
	defer shm.Close()
	return BuildMetadata(shm.ReadHeader(), pid)
}

// BuildMetadata captures session metadata from a segment header
// snapshot. It rejects stats versions this build does not understand.
func BuildMetadata(header fexshm.HeaderSnapshot, pid int32) (*SessionMetadata, error) {
	if header.Version != fexshm.StatsVersion {
		return nil, fmt.Errorf("unsupported stats version %d (expected %d)", header.Version, fexshm.StatsVersion)
	}

	return &SessionMetadata{
		PID:                   pid,
		FexVersion:            header.FexVersion,
		AppType:               header.AppType,
		StatsVersion:          header.Version,
		CycleCounterFrequency: fexshm.CycleCounterFrequency(),
		HardwareConcurrency:   hardwareConcurrency(),
		RecordingStart:        time.Now(),
		Head:                  header.Head,
		Size:                  header.Size,
	}, nil
}

func hardwareConcurrency() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
