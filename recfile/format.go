// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package recfile

import (
	"github.com/fexprof/felix/fexmaps"
	"github.com/fexprof/felix/sampler"
)

// FormatVersion is the current recording layout version. Version 1
// recordings (frames without cumulative counters) are still readable;
// see legacyFrame.
const FormatVersion = 2

var (
	magic = [4]byte{'F', 'L', 'X', 'R'}

	// eofMarker is written in place of a frame's length prefix to mark
	// a clean end of stream. A real frame would need to be 0x464F4546
	// bytes long to collide with it, which no practical frame
	// approaches; the format accepts that convention rather than
	// escaping lengths.
	eofMarker = [4]byte{'F', 'E', 'O', 'F'}
)

// legacyComputedFrame is the version 1 frame layout, which predates
// the cumulative counters. Field order must not change.
type legacyComputedFrame struct {
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
	ThreadLoads             []sampler.ThreadLoad
	Mem                     fexmaps.MemSnapshot
	HistogramEntry          sampler.HistogramEntry
}

type legacyFrame struct {
	_msgpack struct{} `msgpack:",as_array"`

	Computed        legacyComputedFrame
	PerThreadDeltas []sampler.ThreadDelta
}

// upgrade converts a version 1 frame to the current layout. Fields the
// old schema lacks default to zero.
func (l *legacyFrame) upgrade() *sampler.Frame {
	lc := l.Computed
	return &sampler.Frame{
		Computed: sampler.ComputedFrame{
			TimestampNS:             lc.TimestampNS,
			SamplePeriodNS:          lc.SamplePeriodNS,
			ThreadsSampled:          lc.ThreadsSampled,
			TotalJITTime:            lc.TotalJITTime,
			TotalSignalTime:         lc.TotalSignalTime,
			TotalSigbusCount:        lc.TotalSigbusCount,
			TotalSMCCount:           lc.TotalSMCCount,
			TotalFloatFallbackCount: lc.TotalFloatFallbackCount,
			TotalCacheMissCount:     lc.TotalCacheMissCount,
			TotalCacheReadLockTime:  lc.TotalCacheReadLockTime,
			TotalCacheWriteLockTime: lc.TotalCacheWriteLockTime,
			TotalJITCount:           lc.TotalJITCount,
			TotalJITInvocations:     lc.TotalJITInvocations,
			FexLoadPercent:          lc.FexLoadPercent,
			ThreadLoads:             lc.ThreadLoads,
			Mem:                     lc.Mem,
			HistogramEntry:          lc.HistogramEntry,
			Cumulative:              sampler.CumulativeCountStats{},
		},
		PerThreadDeltas: l.PerThreadDeltas,
	}
}
