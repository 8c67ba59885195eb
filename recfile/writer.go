// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package recfile

import (
	"bufio"
	"encoding/binary"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/fexprof/felix/sampler"
	"github.com/fexprof/felix/session"
)

// A Writer appends frames to a recording file. Frames may be written
// at any rate; the Writer performs no batching or deduplication.
//
// Finish must be called to write the end marker and flush the
// compressor. A recording missing its end marker (crash, SIGKILL) is
// still readable up to the last complete frame.
type Writer struct {
	file *os.File
	buf  *bufio.Writer
	enc  *zstd.Encoder
}

// Create opens a recording file at path and writes its header.
func Create(path string, meta *session.SessionMetadata) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create recording file %s", path)
	}

	buf := bufio.NewWriter(file)
	enc, err := zstd.NewWriter(buf)
	if err != nil {
		file.Close()
		return nil, errors.Wrap(err, "failed to create zstd encoder")
	}

	w := &Writer{file: file, buf: buf, enc: enc}

	if _, err := enc.Write(magic[:]); err != nil {
		w.abort()
		return nil, errors.Wrap(err, "failed to write magic")
	}
	if _, err := enc.Write([]byte{FormatVersion}); err != nil {
		w.abort()
		return nil, errors.Wrap(err, "failed to write format version")
	}
	if err := w.writeBlock(meta); err != nil {
		w.abort()
		return nil, errors.Wrap(err, "failed to write session metadata")
	}

	return w, nil
}

// WriteFrame serializes and appends one frame. Implements
// session.FrameSink.
func (w *Writer) WriteFrame(frame *sampler.Frame) error {
	if err := w.writeBlock(frame); err != nil {
		return errors.Wrap(err, "failed to write frame")
	}
	return nil
}

// writeBlock writes one length-prefixed msgpack block.
func (w *Writer) writeBlock(v interface{}) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.enc.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.enc.Write(data)
	return err
}

// Finish writes the end marker, finalizes compression, and closes the
// file.
func (w *Writer) Finish() error {
	if _, err := w.enc.Write(eofMarker[:]); err != nil {
		w.abort()
		return errors.Wrap(err, "failed to write end marker")
	}
	if err := w.enc.Close(); err != nil {
		w.file.Close()
		return errors.Wrap(err, "failed to finish zstd encoder")
	}
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return errors.Wrap(err, "failed to flush recording file")
	}
	return errors.Wrap(w.file.Close(), "failed to close recording file")
}

func (w *Writer) abort() {
	w.enc.Close()
	w.file.Close()
}
