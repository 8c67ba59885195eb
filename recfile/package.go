// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package recfile reads and writes felix recording files.
//
// A recording is a zstd stream containing, in order: a 4-byte magic, a
// 1-byte format version, a length-prefixed session metadata block, any
// number of length-prefixed frames, and an optional end marker. Every
// length prefix is 4 bytes little-endian. Reading starts with a call
// to Open, which materializes all frames in memory; FrameAt then gives
// random access, and ReplaySource paces frames out at a selectable
// speed.
package recfile // import "github.com/fexprof/felix/recfile"
