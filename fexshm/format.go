// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fexshm

// StatsVersion is the segment layout version this package understands.
const StatsVersion = 2

// An AppType identifies the guest ABI FEX is emulating.
type AppType uint8

const (
	AppLinux32 AppType = iota
	AppLinux64
	AppWinArm64ec
	AppWinWow64
)

func (t AppType) String() string {
	switch t {
	case AppLinux32:
		return "Linux32"
	case AppLinux64:
		return "Linux64"
	case AppWinArm64ec:
		return "arm64ec"
	case AppWinWow64:
		return "wow64"
	}
	return "unknown"
}

// AppTypeFromByte converts a raw header byte to an AppType. The second
// result is false for values outside the known range.
func AppTypeFromByte(b uint8) (AppType, bool) {
	if b > uint8(AppWinWow64) {
		return 0, false
	}
	return AppType(b), true
}

// Segment header layout, as laid out by FEX:
//
//	u8      version
//	u8      app type
//	u16     thread stats record size
//	[48]u8  FEX version string, NUL padded
//	u32     head offset of the thread record list
//	u32     total segment size
//	u32     pad
const (
	headerSize     = 64
	fexVersionSize = 48
)

// HeaderSnapshot is one torn-read-safe copy of the segment header.
// The producer mutates the header without a lock, so two snapshots
// taken back to back may differ.
type HeaderSnapshot struct {
	Version         uint8
	AppType         AppType
	ThreadStatsSize uint16
	FexVersion      string
	Head            uint32
	Size            uint32
}

// threadStatsSize is the fixed size of one ThreadStats record. The
// producer 16-byte aligns records, so offsets in the linked list are
// always multiples of 16.
const threadStatsSize = 80

// ThreadStats is one per-thread counter record copied out of the
// segment. All counters increase monotonically (modulo wraparound)
// over the thread's lifetime; they are never reset.
type ThreadStats struct {
	Next uint32
	TID  uint32

	AccumulatedJITTime            uint64
	AccumulatedSignalTime         uint64
	SigbusCount                   uint64
	SMCCount                      uint64
	FloatFallbackCount            uint64
	AccumulatedCacheMissCount     uint64
	AccumulatedCacheReadLockTime  uint64
	AccumulatedCacheWriteLockTime uint64
	AccumulatedJITCount           uint64
}
