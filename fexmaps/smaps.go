// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fexmaps samples the resident memory of a FEX process from
// /proc/<pid>/smaps and classifies it by FEX's named regions.
package fexmaps // import "github.com/fexprof/felix/fexmaps"

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// LargestAnon describes the single largest resident allocator region
// observed in a snapshot.
type LargestAnon struct {
	_msgpack struct{} `msgpack:",as_array"`

	Begin uint64
	End   uint64
	Size  uint64
}

// A MemSnapshot is one resident-memory sample, bucketed by FEX region
// name. The buckets always sum to TotalAnon: mappings that carry a FEX
// tag but no recognized sub-region name land in Unaccounted instead of
// being dropped.
type MemSnapshot struct {
	_msgpack struct{} `msgpack:",as_array"`

	TotalAnon    uint64
	JITCode      uint64
	OpDispatcher uint64
	Frontend     uint64
	CPUBackend   uint64
	Lookup       uint64
	LookupL1     uint64
	ThreadStates uint64
	BlockLinks   uint64
	Misc         uint64
	JEMalloc     uint64
	Unaccounted  uint64
	LargestAnon  LargestAnon
}

// A Sampler reads /proc/<pid>/smaps. The file is opened once and kept
// open across samples; each Sample rereads it from the start since the
// kernel regenerates the full text on every read.
type Sampler struct {
	file *os.File
	buf  []byte
}

// NewSampler opens the smaps file for pid.
func NewSampler(pid int32) (*Sampler, error) {
	return newSampler(fmt.Sprintf("/proc/%d/smaps", pid))
}

func newSampler(path string) (*Sampler, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	return &Sampler{file: file, buf: make([]byte, 0, 256*1024)}, nil
}

// Sample reads the full smaps text and returns a classified snapshot.
func (s *Sampler) Sample() (*MemSnapshot, error) {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "failed to seek smaps")
	}
	s.buf = s.buf[:0]
	buf, err := readAll(s.file, s.buf)
	s.buf = buf
	if err != nil {
		return nil, errors.Wrap(err, "failed to read smaps")
	}
	return parseSmaps(string(buf)), nil
}

// Close releases the smaps handle.
func (s *Sampler) Close() error {
	return s.file.Close()
}

// readAll is io.ReadAll into a reused buffer.
func readAll(r io.Reader, buf []byte) ([]byte, error) {
	for {
		if len(buf) == cap(buf) {
			buf = append(buf, 0)[:len(buf)]
		}
		n, err := r.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return buf, err
		}
	}
}

// region identifies which bucket an smaps mapping accumulates into.
type region int

const (
	regionJITCode region = iota
	regionOpDispatcher
	regionFrontend
	regionCPUBackend
	regionLookup
	regionLookupL1
	regionThreadStates
	regionBlockLinks
	regionMisc
	regionJEMalloc
	regionUnaccounted
)

func parseSmaps(content string) *MemSnapshot {
	snap := &MemSnapshot{}
	active := region(-1)
	var currentBegin, currentEnd uint64

	for _, line := range strings.Split(content, "\n") {
		// Mapping header lines look like:
		// 359519000-359918000 ---p 00000000 00:00 0    [anon:FEXMem]
		if strings.Contains(line, "FEXMem") {
			if begin, end, ok := parseAddressRange(line); ok {
				currentBegin, currentEnd = begin, end
			}

			// Order matters: more specific names before the pools
			// they live in (FEXMem_Lookup_L1 before FEXMem_Lookup).
			switch {
			case strings.Contains(line, "FEXMemJIT"):
				active = regionJITCode
			case strings.Contains(line, "FEXMem_OpDispatcher"):
				active = regionOpDispatcher
			case strings.Contains(line, "FEXMem_Frontend"):
				active = regionFrontend
			case strings.Contains(line, "FEXMem_CPUBackend"):
				active = regionCPUBackend
			case strings.Contains(line, "FEXMem_Lookup_L1"):
				active = regionLookupL1
			case strings.Contains(line, "FEXMem_Lookup"):
				active = regionLookup
			case strings.Contains(line, "FEXMem_ThreadState"):
				active = regionThreadStates
			case strings.Contains(line, "FEXMem_BlockLinks"):
				active = regionBlockLinks
			case strings.Contains(line, "FEXMem_Misc"):
				active = regionMisc
			default:
				active = regionUnaccounted
			}
			continue
		}

		if strings.Contains(line, "JEMalloc") || strings.Contains(line, "FEXAllocator") {
			active = regionJEMalloc
			if begin, end, ok := parseAddressRange(line); ok {
				currentBegin, currentEnd = begin, end
			}
			continue
		}

		// VmFlags is the last line of a mapping block.
		if strings.Contains(line, "VmFlags") {
			active = -1
			continue
		}

		if active < 0 {
			continue
		}
		rss, ok := parseRssLine(line)
		if !ok {
			continue
		}

		snap.TotalAnon += rss
		switch active {
		case regionJITCode:
			snap.JITCode += rss
		case regionOpDispatcher:
			snap.OpDispatcher += rss
		case regionFrontend:
			snap.Frontend += rss
		case regionCPUBackend:
			snap.CPUBackend += rss
		case regionLookup:
			snap.Lookup += rss
		case regionLookupL1:
			snap.LookupL1 += rss
		case regionThreadStates:
			snap.ThreadStates += rss
		case regionBlockLinks:
			snap.BlockLinks += rss
		case regionMisc:
			snap.Misc += rss
		case regionJEMalloc:
			snap.JEMalloc += rss
			if rss > snap.LargestAnon.Size {
				snap.LargestAnon = LargestAnon{Begin: currentBegin, End: currentEnd, Size: rss}
			}
		case regionUnaccounted:
			snap.Unaccounted += rss
		}
	}

	return snap
}

// parseAddressRange extracts the mapping address range from the start
// of a header line, e.g. "359519000-359918000 ---p ...".
func parseAddressRange(line string) (begin, end uint64, ok bool) {
	addr, _, _ := strings.Cut(line, " ")
	beginStr, endStr, found := strings.Cut(addr, "-")
	if !found {
		return 0, 0, false
	}
	begin, err := strconv.ParseUint(beginStr, 16, 64)
	if err != nil {
		return 0, 0, false
	}
	end, err = strconv.ParseUint(endStr, 16, 64)
	if err != nil {
		return 0, 0, false
	}
	return begin, end, true
}

// parseRssLine returns the byte value of an "Rss:  560 kB" line.
func parseRssLine(line string) (uint64, bool) {
	trimmed := strings.TrimSpace(line)
	rest, ok := strings.CutPrefix(trimmed, "Rss:")
	if !ok {
		return 0, false
	}
	fields := strings.Fields(rest)
	if len(fields) < 2 || fields[1] != "kB" {
		return 0, false
	}
	size, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return size * 1024, true
}
