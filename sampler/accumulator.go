// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sampler

import (
	"sort"

	"github.com/fexprof/felix/fexmaps"
)

const nanosecondsInSecond = 1e9

// Per-sample-period absolute alert thresholds. Counts are per sample
// window, so shorter periods trip these later.
const (
	highSMCThreshold       = 500
	highSigbusThreshold    = 5_000
	highSoftfloatThreshold = 1_000_000
)

// CumulativeCountStats are session-lifetime counter totals carried
// alongside each frame.
type CumulativeCountStats struct {
	_msgpack struct{} `msgpack:",as_array"`

	Sigbus        uint64
	SMC           uint64
	FloatFallback uint64
	CacheMiss     uint64
	JIT           uint64
}

// Add accumulates one sample's deltas into the running totals.
func (c *CumulativeCountStats) Add(deltas []ThreadDelta) {
	for _, d := range deltas {
		c.Sigbus += d.SigbusCount
		c.SMC += d.SMCCount
		c.FloatFallback += d.FloatFallbackCount
		c.CacheMiss += d.CacheMissCount
		c.JIT += d.JITCount
	}
}

// A ThreadLoad is one entry of a frame's top-N per-thread loads.
type ThreadLoad struct {
	_msgpack struct{} `msgpack:",as_array"`

	TID         uint32
	LoadPercent float32
	TotalCycles uint64
}

// A HistogramEntry carries the frame's load percentage and alert
// flags for the load-history display.
type HistogramEntry struct {
	_msgpack struct{} `msgpack:",as_array"`

	LoadPercent         float32
	HighJITLoad         bool
	HighInvalidationSMC bool
	HighSigbus          bool
	HighSoftfloat       bool
}

// A ComputedFrame is one sampling interval's fully derived state, the
// unit handed to every downstream consumer.
type ComputedFrame struct {
	_msgpack struct{} `msgpack:",as_array"`

	TimestampNS             uint64
	SamplePeriodNS          uint64
	ThreadsSampled          int
	TotalJITTime            uint64
	TotalSignalTime         uint64
	TotalSigbusCount        uint64
	TotalSMCCount           uint64
	TotalFloatFallbackCount uint64
	TotalCacheMissCount     uint64
	TotalCacheReadLockTime  uint64
	TotalCacheWriteLockTime uint64
	TotalJITCount           uint64
	TotalJITInvocations     uint64
	FexLoadPercent          float64
	ThreadLoads             []ThreadLoad
	Mem                     fexmaps.MemSnapshot
	HistogramEntry          HistogramEntry
	Cumulative              CumulativeCountStats
}

// A Frame is the recorded unit: the computed state plus the raw
// per-thread deltas that produced it, kept so a recording can be
// re-aggregated without losing per-thread resolution.
type Frame struct {
	_msgpack struct{} `msgpack:",as_array"`

	Computed        ComputedFrame
	PerThreadDeltas []ThreadDelta
}

// An Accumulator combines thread deltas, the latest memory snapshot,
// and elapsed time into computed frames. It holds only
// construction-time constants; ComputeFrame is a pure function of its
// inputs.
type Accumulator struct {
	cycleFreq           float64
	hardwareConcurrency int
}

func NewAccumulator(cycleFreq float64, hardwareConcurrency int) *Accumulator {
	return &Accumulator{
		cycleFreq:           cycleFreq,
		hardwareConcurrency: hardwareConcurrency,
	}
}

// ComputeFrame derives one frame from a sample. Out-of-range or zero
// inputs degrade to zero/no-alert outputs rather than failing.
func (a *Accumulator) ComputeFrame(sample *SampleResult, mem *fexmaps.MemSnapshot, samplePeriodNS uint64, totalJITInvocations uint64, cumulative CumulativeCountStats) ComputedFrame {
	frame := ComputedFrame{
		SamplePeriodNS:      samplePeriodNS,
		ThreadsSampled:      sample.ThreadsSampled,
		TotalJITInvocations: totalJITInvocations,
		Mem:                 *mem,
		Cumulative:          cumulative,
	}

	type threadTime struct {
		tid   uint32
		total uint64
	}
	perThread := make([]threadTime, 0, len(sample.PerThread))

	for _, d := range sample.PerThread {
		frame.TotalJITTime += d.JITTime
		frame.TotalSignalTime += d.SignalTime
		frame.TotalSigbusCount += d.SigbusCount
		frame.TotalSMCCount += d.SMCCount
		frame.TotalFloatFallbackCount += d.FloatFallbackCount
		frame.TotalCacheMissCount += d.CacheMissCount
		frame.TotalCacheReadLockTime += d.CacheReadLockTime
		frame.TotalCacheWriteLockTime += d.CacheWriteLockTime
		frame.TotalJITCount += d.JITCount

		perThread = append(perThread, threadTime{d.TID, d.JITTime + d.SignalTime})
	}

	// Stable: ties keep linked-list walk order, first encountered wins.
	sort.SliceStable(perThread, func(i, j int) bool {
		return perThread[i].total > perThread[j].total
	})

	totalJITTimeAll := frame.TotalJITTime + frame.TotalSignalTime

	// The theoretical cycle budget for one core over one sample window.
	maxCyclesInSamplePeriod := a.cycleFreq * (float64(samplePeriodNS) / nanosecondsInSecond)

	// Floored at 1 so an empty sample divides by one core's budget
	// instead of zero, and capped at the core count so undermeasured
	// utilization is not rewarded with inflated percentages.
	maxCoresThreads := 1.0
	if sample.ThreadsSampled > 0 {
		maxCoresThreads = float64(min(sample.ThreadsSampled, a.hardwareConcurrency))
	}

	if maxCyclesInSamplePeriod > 0 {
		frame.FexLoadPercent = float64(totalJITTimeAll) / (maxCyclesInSamplePeriod * maxCoresThreads) * 100
	}

	keep := min(a.hardwareConcurrency, len(perThread))
	frame.ThreadLoads = make([]ThreadLoad, 0, keep)
	for _, tt := range perThread[:keep] {
		var loadPercent float32
		if maxCyclesInSamplePeriod > 0 {
			loadPercent = float32(float64(tt.total) / maxCyclesInSamplePeriod * 100)
		}
		frame.ThreadLoads = append(frame.ThreadLoads, ThreadLoad{
			TID:         tt.tid,
			LoadPercent: loadPercent,
			TotalCycles: tt.total,
		})
	}

	frame.HistogramEntry = HistogramEntry{
		LoadPercent:         float32(frame.FexLoadPercent),
		HighJITLoad:         totalJITTimeAll >= uint64(maxCyclesInSamplePeriod),
		HighInvalidationSMC: frame.TotalSMCCount >= highSMCThreshold,
		HighSigbus:          frame.TotalSigbusCount >= highSigbusThreshold,
		HighSoftfloat:       frame.TotalFloatFallbackCount >= highSoftfloatThreshold,
	}

	return frame
}
