// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sampler derives per-sample metrics from the raw counters in
// a FEX stats segment: per-thread deltas, frame-level totals, load
// percentages, and alert flags.
package sampler // import "github.com/fexprof/felix/sampler"

import (
	"time"

	"github.com/fexprof/felix/fexshm"
)

// DefaultStaleTimeout is how long a thread may go unobserved before
// its baseline is evicted. Independent of the sample period.
const DefaultStaleTimeout = 10 * time.Second

// A ThreadDelta is the difference of every counter between two
// consecutive raw snapshots of one thread. Deltas are always
// non-negative: subtraction wraps, so a counter that wrapped past its
// maximum still yields a small positive delta.
type ThreadDelta struct {
	_msgpack struct{} `msgpack:",as_array"`

	TID                uint32
	JITTime            uint64
	SignalTime         uint64
	SigbusCount        uint64
	SMCCount           uint64
	FloatFallbackCount uint64
	CacheMissCount     uint64
	CacheReadLockTime  uint64
	CacheWriteLockTime uint64
	JITCount           uint64
}

// A SampleResult is the outcome of one sampling pass: one delta per
// thread present in the raw snapshot, in linked-list walk order.
type SampleResult struct {
	Timestamp      time.Time
	PerThread      []ThreadDelta
	ThreadsSampled int
}

// A ThreadSampler turns successive raw snapshots into deltas. It keeps
// a baseline per thread id; a thread seen for the first time yields an
// all-zero delta because no baseline exists yet.
type ThreadSampler struct {
	previous     map[uint32]fexshm.ThreadStats
	lastSeen     map[uint32]time.Time
	staleTimeout time.Duration
}

func NewThreadSampler() *ThreadSampler {
	return &ThreadSampler{
		previous:     make(map[uint32]fexshm.ThreadStats),
		lastSeen:     make(map[uint32]time.Time),
		staleTimeout: DefaultStaleTimeout,
	}
}

// Sample produces one delta per thread in raw and advances all
// baselines to the current values. Threads absent longer than the
// stale timeout are evicted from both the baseline and last-seen maps,
// so short-lived guest threads cannot grow the state unboundedly.
func (s *ThreadSampler) Sample(raw []fexshm.ThreadStats, now time.Time) SampleResult {
	deltas := make([]ThreadDelta, 0, len(raw))

	for _, stat := range raw {
		tid := stat.TID
		s.lastSeen[tid] = now

		var delta ThreadDelta
		if prev, ok := s.previous[tid]; ok {
			delta = ThreadDelta{
				TID:                tid,
				JITTime:            stat.AccumulatedJITTime - prev.AccumulatedJITTime,
				SignalTime:         stat.AccumulatedSignalTime - prev.AccumulatedSignalTime,
				SigbusCount:        stat.SigbusCount - prev.SigbusCount,
				SMCCount:           stat.SMCCount - prev.SMCCount,
				FloatFallbackCount: stat.FloatFallbackCount - prev.FloatFallbackCount,
				CacheMissCount:     stat.AccumulatedCacheMissCount - prev.AccumulatedCacheMissCount,
				CacheReadLockTime:  stat.AccumulatedCacheReadLockTime - prev.AccumulatedCacheReadLockTime,
				CacheWriteLockTime: stat.AccumulatedCacheWriteLockTime - prev.AccumulatedCacheWriteLockTime,
				JITCount:           stat.AccumulatedJITCount - prev.AccumulatedJITCount,
			}
		} else {
			delta = ThreadDelta{TID: tid}
		}

		s.previous[tid] = stat
		deltas = append(deltas, delta)
	}

	for tid, seen := range s.lastSeen {
		if now.Sub(seen) >= s.staleTimeout {
			delete(s.lastSeen, tid)
			delete(s.previous, tid)
		}
	}

	return SampleResult{
		Timestamp:      now,
		PerThread:      deltas,
		ThreadsSampled: len(deltas),
	}
}
