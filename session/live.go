// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/fexprof/felix/fexmaps"
	"github.com/fexprof/felix/fexshm"
	"github.com/fexprof/felix/sampler"
)

// A LiveSource samples a running FEX process at a fixed period and
// produces computed frames. If a FrameSink is attached, every frame is
// also written to it, in strict sample order.
type LiveSource struct {
	meta    *SessionMetadata
	shm     *fexshm.Reader
	threads *sampler.ThreadSampler
	mem     *fexmaps.Worker
	acc     *sampler.Accumulator
	sink    FrameSink

	period     time.Duration
	periodNS   uint64
	cumulative sampler.CumulativeCountStats
	start      time.Time
	lastSample time.Time

	now func() time.Time
}

// NewLiveSource opens the stats segment for pid, validates its header,
// and starts the background memory sampler. sink may be nil.
func NewLiveSource(pid int32, period time.Duration, sink FrameSink, log *zap.Logger) (*LiveSource, error) {
	shm, err := fexshm.Open(pid)
	if err != nil {
		return nil, err
	}

	meta, err := BuildMetadata(shm.ReadHeader(), pid)
	if err != nil {
		shm.Close()
		return nil, err
	}

	mem, err := fexmaps.StartWorker(pid, period, log)
	if err != nil {
		shm.Close()
		return nil, err
	}

	return newLiveSource(shm, meta, mem, period, sink), nil
}

func newLiveSource(shm *fexshm.Reader, meta *SessionMetadata, mem *fexmaps.Worker, period time.Duration, sink FrameSink) *LiveSource {
	now := time.Now()
	return &LiveSource{
		meta:       meta,
		shm:        shm,
		threads:    sampler.NewThreadSampler(),
		mem:        mem,
		acc:        sampler.NewAccumulator(float64(meta.CycleCounterFrequency), meta.HardwareConcurrency),
		sink:       sink,
		period:     period,
		periodNS:   uint64(period.Nanoseconds()),
		start:      now,
		lastSample: now,
		now:        time.Now,
	}
}

// NextFrame returns the next computed frame once a full sample period
// has elapsed since the previous one, and nil before that. Resize and
// sink failures are fatal and propagate.
func (s *LiveSource) NextFrame() (*sampler.Frame, error) {
	now := s.now()
	if now.Sub(s.lastSample) < s.period {
		return nil, nil
	}
	s.lastSample = now
	return s.takeSample(now)
}

func (s *LiveSource) takeSample(now time.Time) (*sampler.Frame, error) {
	if err := s.shm.CheckResize(); err != nil {
		return nil, err
	}

	raw := s.shm.ReadThreadStats()
	result := s.threads.Sample(raw, now)
	mem := s.mem.Latest()

	s.cumulative.Add(result.PerThread)

	computed := s.acc.ComputeFrame(&result, &mem, s.periodNS, s.cumulative.JIT, s.cumulative)
	computed.TimestampNS = uint64(now.Sub(s.start).Nanoseconds())

	frame := &sampler.Frame{Computed: computed, PerThreadDeltas: result.PerThread}
	if s.sink != nil {
		if err := s.sink.WriteFrame(frame); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

func (s *LiveSource) Metadata() *SessionMetadata { return s.meta }

func (s *LiveSource) IsLive() bool { return true }

// Close stops the memory sampler (joining its goroutine so no sample
// is in flight) and then releases the segment mapping, in that order.
func (s *LiveSource) Close() error {
	s.mem.Shutdown()
	return s.shm.Close()
}
