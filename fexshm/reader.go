// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fexshm

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// SegmentName returns the path of the stats segment for pid.
func SegmentName(pid int32) string {
	return fmt.Sprintf("/dev/shm/fex-%d-stats", pid)
}

// A Reader maps one FEX stats segment read-only and copies records out
// of it.
//
// The producer writes the segment concurrently with no shared lock.
// Reader therefore copies the header and every thread record with
// 8-byte atomic loads, which the platform guarantees are never torn.
// That makes each individual field internally consistent, but fields
// within one record may still reflect different sampling instants; FEX
// does not promise cross-field consistency and neither does Reader.
type Reader struct {
	data []byte
	fd   int
}

// Open maps the stats segment of the FEX process with the given pid.
// It fails if the segment does not exist, is smaller than the segment
// header, or cannot be mapped.
func Open(pid int32) (*Reader, error) {
	return OpenFile(SegmentName(pid))
}

// OpenFile is like Open but takes an explicit path to the segment.
func OpenFile(path string) (*Reader, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open shared memory %s", path)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "failed to fstat shared memory")
	}
	size := int(st.Size)
	if size < headerSize {
		unix.Close(fd)
		return nil, fmt.Errorf("shared memory too small: %d bytes (minimum %d)", size, headerSize)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "failed to mmap shared memory")
	}

	return &Reader{data: data, fd: fd}, nil
}

// Size returns the currently mapped size of the segment.
func (r *Reader) Size() int {
	return len(r.data)
}

// loadWords copies len(dst) bytes starting at off out of the mapping
// using aligned 8-byte atomic loads. off and len(dst) must be
// multiples of 8; the mapping is page aligned so any 8-aligned offset
// yields an aligned load.
func (r *Reader) loadWords(off int, dst []byte) {
	base := unsafe.Pointer(unsafe.SliceData(r.data))
	for i := 0; i < len(dst); i += 8 {
		p := (*uint64)(unsafe.Pointer(uintptr(base) + uintptr(off+i)))
		binary.LittleEndian.PutUint64(dst[i:], atomic.LoadUint64(p))
	}
}

// ReadHeader takes a torn-read-safe snapshot of the segment header.
// An unknown app type byte falls back to Linux64.
func (r *Reader) ReadHeader() HeaderSnapshot {
	var buf [headerSize]byte
	r.loadWords(0, buf[:])

	bd := bufDecoder{buf[:], binary.LittleEndian}
	version := bd.u8()
	appByte := bd.u8()
	statsSize := bd.u16()
	fexVersion := bd.cstring(fexVersionSize)
	head := bd.u32()
	size := bd.u32()

	appType, ok := AppTypeFromByte(appByte)
	if !ok {
		appType = AppLinux64
	}

	return HeaderSnapshot{
		Version:         version,
		AppType:         appType,
		ThreadStatsSize: statsSize,
		FexVersion:      fexVersion,
		Head:            head,
		Size:            size,
	}
}

// ReadThreadStats walks the linked list of thread records starting at
// the header's head offset and returns a copy of every record, in
// list order.
//
// Every next offset is bounds-checked against the current mapping
// before it is dereferenced. An out-of-range offset ends the walk
// rather than failing: the producer may be mid-resize, in which case
// the caller simply sees a truncated (stale) view until the next
// CheckResize.
func (r *Reader) ReadThreadStats() []ThreadStats {
	header := r.ReadHeader()

	var result []ThreadStats
	offset := int(header.Head)
	maxRecords := len(r.data) / threadStatsSize

	for offset != 0 && len(result) < maxRecords {
		if offset+threadStatsSize > len(r.data) {
			break
		}

		var buf [threadStatsSize]byte
		r.loadWords(offset, buf[:])

		bd := bufDecoder{buf[:], binary.LittleEndian}
		stats := ThreadStats{
			Next:                          bd.u32(),
			TID:                           bd.u32(),
			AccumulatedJITTime:            bd.u64(),
			AccumulatedSignalTime:         bd.u64(),
			SigbusCount:                   bd.u64(),
			SMCCount:                      bd.u64(),
			FloatFallbackCount:            bd.u64(),
			AccumulatedCacheMissCount:     bd.u64(),
			AccumulatedCacheReadLockTime:  bd.u64(),
			AccumulatedCacheWriteLockTime: bd.u64(),
			AccumulatedJITCount:           bd.u64(),
		}

		offset = int(stats.Next)
		result = append(result, stats)
	}

	return result
}

// CheckResize re-reads the size declared in the header and remaps the
// segment if it has changed. It must be called before each read cycle;
// otherwise records appended past the current mapping are silently
// dropped by the bounds check in ReadThreadStats.
//
// A failed remap is fatal for the session: the old mapping is already
// gone, so the Reader is unusable afterwards.
func (r *Reader) CheckResize() error {
	header := r.ReadHeader()

	newSize := int(header.Size)
	if newSize == len(r.data) || newSize == 0 {
		return nil
	}

	if err := unix.Munmap(r.data); err != nil {
		r.data = nil
		return errors.Wrap(err, "failed to munmap during resize")
	}
	r.data = nil

	data, err := unix.Mmap(r.fd, 0, newSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return errors.Wrap(err, "failed to remap shared memory")
	}
	r.data = data
	return nil
}

// Close unmaps the segment and closes the underlying descriptor.
func (r *Reader) Close() error {
	var err error
	if r.data != nil {
		err = unix.Munmap(r.data)
		r.data = nil
	}
	if r.fd >= 0 {
		if cerr := unix.Close(r.fd); err == nil {
			err = cerr
		}
		r.fd = -1
	}
	return err
}
