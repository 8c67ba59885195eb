// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package recfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/fexprof/felix/sampler"
	"github.com/fexprof/felix/session"
)

// A Reader holds a fully loaded recording. All frames are materialized
// at Open time; memory use is bounded only by the recording size.
type Reader struct {
	meta    *session.SessionMetadata
	frames  []*sampler.Frame
	version uint8
}

// Open loads the recording at path. Bad magic, an unsupported version,
// or a corrupt frame abort the whole load; a missing end marker does
// not, as long as every length prefix before the cut parsed cleanly.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open recording file %s", path)
	}
	defer file.Close()

	dec, err := zstd.NewReader(bufio.NewReader(file))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create zstd decoder")
	}
	defer dec.Close()

	return load(dec)
}

func load(r io.Reader) (*Reader, error) {
	var fileMagic [4]byte
	if _, err := io.ReadFull(r, fileMagic[:]); err != nil {
		return nil, errors.Wrap(err, "failed to read magic")
	}
	if !bytes.Equal(fileMagic[:], magic[:]) {
		return nil, fmt.Errorf("bad or unsupported file magic %q", fileMagic[:])
	}

	var versionBuf [1]byte
	if _, err := io.ReadFull(r, versionBuf[:]); err != nil {
		return nil, errors.Wrap(err, "failed to read format version")
	}
	version := versionBuf[0]
	if version != FormatVersion && version != 1 {
		return nil, fmt.Errorf("unsupported format version %d (expected %d)", version, FormatVersion)
	}

	metaData, err := readBlock(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read session metadata")
	}
	meta := new(session.SessionMetadata)
	if err := msgpack.Unmarshal(metaData, meta); err != nil {
		return nil, errors.Wrap(err, "failed to decode session metadata")
	}

	rd := &Reader{meta: meta, version: version}
	if err := rd.readAllFrames(r); err != nil {
		return nil, err
	}
	return rd, nil
}

func (rd *Reader) readAllFrames(r io.Reader) error {
	var lenBuf [4]byte
	for {
		_, err := io.ReadFull(r, lenBuf[:])
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			// No end marker: graceful truncation, not corruption.
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to read frame length")
		}

		if bytes.Equal(lenBuf[:], eofMarker[:]) {
			return nil
		}

		data := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
		if _, err := io.ReadFull(r, data); err != nil {
			return errors.Wrap(err, "failed to read frame data")
		}

		frame, err := rd.decodeFrame(data)
		if err != nil {
			return errors.Wrap(err, "failed to decode frame")
		}
		rd.frames = append(rd.frames, frame)
	}
}

func (rd *Reader) decodeFrame(data []byte) (*sampler.Frame, error) {
	if rd.version == 1 {
		legacy := new(legacyFrame)
		if err := msgpack.Unmarshal(data, legacy); err != nil {
			return nil, err
		}
		return legacy.upgrade(), nil
	}

	frame := new(sampler.Frame)
	if err := msgpack.Unmarshal(data, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// readBlock reads one length-prefixed block.
func readBlock(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	data := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Metadata returns the session metadata embedded in the recording.
func (rd *Reader) Metadata() *session.SessionMetadata {
	return rd.meta
}

// FrameCount returns the number of frames in the recording.
func (rd *Reader) FrameCount() int {
	return len(rd.frames)
}

// FrameAt returns frame i, or nil if i is out of range.
func (rd *Reader) FrameAt(i int) *sampler.Frame {
	if i < 0 || i >= len(rd.frames) {
		return nil
	}
	return rd.frames[i]
}
