// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fexshm

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putHeader(buf []byte, version, appType uint8, fexVersion string, head, size uint32) {
	buf[0] = version
	buf[1] = appType
	binary.LittleEndian.PutUint16(buf[2:], threadStatsSize)
	copy(buf[4:4+fexVersionSize], fexVersion)
	binary.LittleEndian.PutUint32(buf[52:], head)
	binary.LittleEndian.PutUint32(buf[56:], size)
}

func putRecord(buf []byte, off int, next, tid uint32, counters ...uint64) {
	binary.LittleEndian.PutUint32(buf[off:], next)
	binary.LittleEndian.PutUint32(buf[off+4:], tid)
	for i, c := range counters {
		binary.LittleEndian.PutUint64(buf[off+8+8*i:], c)
	}
}

func writeSegment(t *testing.T, buf []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fex-1234-stats")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestOpenFileTooSmall(t *testing.T) {
	path := writeSegment(t, make([]byte, headerSize-1))
	_, err := OpenFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too small")
}

func TestOpenFileMissing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestReadHeader(t *testing.T) {
	buf := make([]byte, 256)
	putHeader(buf, StatsVersion, uint8(AppWinArm64ec), "FEX-2506", 64, 256)

	r, err := OpenFile(writeSegment(t, buf))
	require.NoError(t, err)
	defer r.Close()

	h := r.ReadHeader()
	assert.Equal(t, uint8(StatsVersion), h.Version)
	assert.Equal(t, AppWinArm64ec, h.AppType)
	assert.Equal(t, uint16(threadStatsSize), h.ThreadStatsSize)
	assert.Equal(t, "FEX-2506", h.FexVersion)
	assert.Equal(t, uint32(64), h.Head)
	assert.Equal(t, uint32(256), h.Size)
}

func TestReadHeaderUnknownAppTypeFallsBack(t *testing.T) {
	buf := make([]byte, 128)
	putHeader(buf, StatsVersion, 42, "FEX", 0, 128)

	r, err := OpenFile(writeSegment(t, buf))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, AppLinux64, r.ReadHeader().AppType)
}

func TestReadThreadStatsWalk(t *testing.T) {
	buf := make([]byte, 512)
	putHeader(buf, StatsVersion, uint8(AppLinux64), "FEX", 64, 512)
	putRecord(buf, 64, 160, 100, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	putRecord(buf, 160, 0, 200, 10, 20, 30, 40, 50, 60, 70, 80, 90)

	r, err := OpenFile(writeSegment(t, buf))
	require.NoError(t, err)
	defer r.Close()

	stats := r.ReadThreadStats()
	require.Len(t, stats, 2)

	assert.Equal(t, uint32(100), stats[0].TID)
	assert.Equal(t, uint64(1), stats[0].AccumulatedJITTime)
	assert.Equal(t, uint64(2), stats[0].AccumulatedSignalTime)
	assert.Equal(t, uint64(9), stats[0].AccumulatedJITCount)

	assert.Equal(t, uint32(200), stats[1].TID)
	assert.Equal(t, uint64(10), stats[1].AccumulatedJITTime)
	assert.Equal(t, uint64(90), stats[1].AccumulatedJITCount)
}

func TestReadThreadStatsEmptyList(t *testing.T) {
	buf := make([]byte, 128)
	putHeader(buf, StatsVersion, uint8(AppLinux64), "FEX", 0, 128)

	r, err := OpenFile(writeSegment(t, buf))
	require.NoError(t, err)
	defer r.Close()

	assert.Empty(t, r.ReadThreadStats())
}

func TestReadThreadStatsStopsOnOutOfRangeOffset(t *testing.T) {
	// The second record's next offset points past the mapping, as it
	// would mid-resize. The walk must stop cleanly after two records.
	buf := make([]byte, 512)
	putHeader(buf, StatsVersion, uint8(AppLinux64), "FEX", 64, 512)
	putRecord(buf, 64, 160, 100, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	putRecord(buf, 160, 4096, 200, 10, 20, 30, 40, 50, 60, 70, 80, 90)

	r, err := OpenFile(writeSegment(t, buf))
	require.NoError(t, err)
	defer r.Close()

	stats := r.ReadThreadStats()
	require.Len(t, stats, 2)
	assert.Equal(t, uint32(200), stats[1].TID)
}

func TestReadThreadStatsBreaksCycles(t *testing.T) {
	buf := make([]byte, 512)
	putHeader(buf, StatsVersion, uint8(AppLinux64), "FEX", 64, 512)
	putRecord(buf, 64, 64, 100, 1, 2, 3, 4, 5, 6, 7, 8, 9) // points at itself

	r, err := OpenFile(writeSegment(t, buf))
	require.NoError(t, err)
	defer r.Close()

	stats := r.ReadThreadStats()
	assert.LessOrEqual(t, len(stats), 512/threadStatsSize)
}

func TestCheckResizeRemapsOnGrowth(t *testing.T) {
	buf := make([]byte, 256)
	putHeader(buf, StatsVersion, uint8(AppLinux64), "FEX", 64, 256)
	putRecord(buf, 64, 0, 100, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	path := writeSegment(t, buf)

	r, err := OpenFile(path)
	require.NoError(t, err)
	defer r.Close()
	require.Len(t, r.ReadThreadStats(), 1)

	// Grow the file, link a new record beyond the old mapping, and
	// publish the new size in the header.
	grown := make([]byte, 512)
	copy(grown, buf)
	putRecord(grown, 64, 304, 100, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	putRecord(grown, 304, 0, 200, 10, 20, 30, 40, 50, 60, 70, 80, 90)
	binary.LittleEndian.PutUint32(grown[56:], 512)
	require.NoError(t, os.WriteFile(path, grown, 0o644))

	// Before the remap, the bounds check hides the new record.
	require.Len(t, r.ReadThreadStats(), 1)

	require.NoError(t, r.CheckResize())
	assert.Equal(t, 512, r.Size())

	stats := r.ReadThreadStats()
	require.Len(t, stats, 2)
	assert.Equal(t, uint32(200), stats[1].TID)
}

func TestCheckResizeNoChange(t *testing.T) {
	buf := make([]byte, 256)
	putHeader(buf, StatsVersion, uint8(AppLinux64), "FEX", 0, 256)

	r, err := OpenFile(writeSegment(t, buf))
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.CheckResize())
	assert.Equal(t, 256, r.Size())
}

func TestCheckResizeIgnoresZeroSize(t *testing.T) {
	buf := make([]byte, 256)
	putHeader(buf, StatsVersion, uint8(AppLinux64), "FEX", 0, 0)

	r, err := OpenFile(writeSegment(t, buf))
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.CheckResize())
	assert.Equal(t, 256, r.Size())
}

func TestSegmentName(t *testing.T) {
	assert.Equal(t, "/dev/shm/fex-4321-stats", SegmentName(4321))
}
