// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sampler

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fexprof/felix/fexshm"
)

func makeStats(tid uint32, jitTime, signalTime uint64) fexshm.ThreadStats {
	return fexshm.ThreadStats{
		TID:                   tid,
		AccumulatedJITTime:    jitTime,
		AccumulatedSignalTime: signalTime,
	}
}

func TestFirstSampleYieldsZeroDeltas(t *testing.T) {
	s := NewThreadSampler()
	now := time.Now()

	result := s.Sample([]fexshm.ThreadStats{makeStats(1, 1000, 500)}, now)

	require.Equal(t, 1, result.ThreadsSampled)
	require.Len(t, result.PerThread, 1)
	assert.Equal(t, uint32(1), result.PerThread[0].TID)
	assert.Zero(t, result.PerThread[0].JITTime)
	assert.Zero(t, result.PerThread[0].SignalTime)
}

func TestSecondSampleYieldsDeltas(t *testing.T) {
	s := NewThreadSampler()
	t0 := time.Now()
	s.Sample([]fexshm.ThreadStats{makeStats(1, 1000, 500)}, t0)

	result := s.Sample([]fexshm.ThreadStats{makeStats(1, 3000, 800)}, t0.Add(time.Second))

	assert.Equal(t, uint64(2000), result.PerThread[0].JITTime)
	assert.Equal(t, uint64(300), result.PerThread[0].SignalTime)
}

func TestWraparoundYieldsSmallPositiveDelta(t *testing.T) {
	s := NewThreadSampler()
	t0 := time.Now()
	s.Sample([]fexshm.ThreadStats{makeStats(1, math.MaxUint64-5, 0)}, t0)

	result := s.Sample([]fexshm.ThreadStats{makeStats(1, 10, 0)}, t0.Add(time.Second))

	assert.Equal(t, uint64(16), result.PerThread[0].JITTime)
}

func TestStaleThreadsAreEvicted(t *testing.T) {
	s := NewThreadSampler()
	t0 := time.Now()
	s.Sample([]fexshm.ThreadStats{makeStats(1, 100, 50), makeStats(2, 200, 100)}, t0)

	result := s.Sample([]fexshm.ThreadStats{makeStats(1, 200, 60)}, t0.Add(11*time.Second))

	assert.Equal(t, 1, result.ThreadsSampled)
	_, ok := s.previous[2]
	assert.False(t, ok)
	_, ok = s.lastSeen[2]
	assert.False(t, ok)
}

func TestEvictedThreadReturnsWithZeroBaseline(t *testing.T) {
	s := NewThreadSampler()
	t0 := time.Now()
	s.Sample([]fexshm.ThreadStats{makeStats(7, 5000, 0)}, t0)

	// Absent past the stale window, then back with a huge counter.
	s.Sample(nil, t0.Add(11*time.Second))
	result := s.Sample([]fexshm.ThreadStats{makeStats(7, 9000, 0)}, t0.Add(12*time.Second))

	// First sight again: the cumulative total must not leak as a delta.
	assert.Zero(t, result.PerThread[0].JITTime)
}

func TestThreadWithinWindowIsKept(t *testing.T) {
	s := NewThreadSampler()
	t0 := time.Now()
	s.Sample([]fexshm.ThreadStats{makeStats(1, 100, 0), makeStats(2, 100, 0)}, t0)

	s.Sample([]fexshm.ThreadStats{makeStats(1, 150, 0)}, t0.Add(5*time.Second))
	result := s.Sample([]fexshm.ThreadStats{makeStats(1, 160, 0), makeStats(2, 300, 0)}, t0.Add(9*time.Second))

	require.Len(t, result.PerThread, 2)
	// Thread 2's baseline survived, so its delta is real, not zero.
	assert.Equal(t, uint64(200), result.PerThread[1].JITTime)
}

func TestDeltasPreserveWalkOrder(t *testing.T) {
	s := NewThreadSampler()
	t0 := time.Now()
	raw := []fexshm.ThreadStats{makeStats(30, 0, 0), makeStats(10, 0, 0), makeStats(20, 0, 0)}
	result := s.Sample(raw, t0)

	tids := []uint32{result.PerThread[0].TID, result.PerThread[1].TID, result.PerThread[2].TID}
	assert.Equal(t, []uint32{30, 10, 20}, tids)
}

func TestAllCounterDeltas(t *testing.T) {
	s := NewThreadSampler()
	t0 := time.Now()
	first := fexshm.ThreadStats{
		TID:                           1,
		AccumulatedJITTime:            10,
		AccumulatedSignalTime:         20,
		SigbusCount:                   30,
		SMCCount:                      40,
		FloatFallbackCount:            50,
		AccumulatedCacheMissCount:     60,
		AccumulatedCacheReadLockTime:  70,
		AccumulatedCacheWriteLockTime: 80,
		AccumulatedJITCount:           90,
	}
	s.Sample([]fexshm.ThreadStats{first}, t0)

	second := first
	second.AccumulatedJITTime += 1
	second.AccumulatedSignalTime += 2
	second.SigbusCount += 3
	second.SMCCount += 4
	second.FloatFallbackCount += 5
	second.AccumulatedCacheMissCount += 6
	second.AccumulatedCacheReadLockTime += 7
	second.AccumulatedCacheWriteLockTime += 8
	second.AccumulatedJITCount += 9

	result := s.Sample([]fexshm.ThreadStats{second}, t0.Add(time.Second))
	d := result.PerThread[0]
	assert.Equal(t, ThreadDelta{
		TID:                1,
		JITTime:            1,
		SignalTime:         2,
		SigbusCount:        3,
		SMCCount:           4,
		FloatFallbackCount: 5,
		CacheMissCount:     6,
		CacheReadLockTime:  7,
		CacheWriteLockTime: 8,
		JITCount:           9,
	}, d)
}
